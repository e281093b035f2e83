package veloxrm

import (
	"bytes"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// recordSnapshot is the encoded form of a record.
type recordSnapshot struct {
	Table    string         `msgpack:"t"`
	Exists   bool           `msgpack:"e"`
	Fields   map[string]any `msgpack:"f"`
	Original map[string]any `msgpack:"o,omitempty"`
	Mapped   map[string]any `msgpack:"m,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler. The encoding holds the
// field values, the persisted values of modified fields and the mapped
// values. Reference state is not encoded.
func (r *Record) MarshalBinary() ([]byte, error) {
	snap := recordSnapshot{
		Table:  r.table.Name(),
		Exists: r.exists,
		Fields: r.fields,
		Mapped: r.mapped,
	}
	if len(r.modified) > 0 {
		snap.Original = r.modified
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("veloxrm: encode %s: %w", r, err)
	}
	return data, nil
}

// UnmarshalRecord decodes a record encoded with MarshalBinary. A persisted
// record that is already loaded is returned as is; otherwise it is
// registered with its modifications replayed.
func (t *Table) UnmarshalRecord(data []byte) (*Record, error) {
	var snap recordSnapshot
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("veloxrm: decode %s record: %w", t.Name(), err)
	}
	if snap.Table != t.Name() {
		return nil, fmt.Errorf("veloxrm: decode %s record: encoded table is %q", t.Name(), snap.Table)
	}
	for _, m := range []map[string]any{snap.Fields, snap.Original, snap.Mapped} {
		for k, v := range m {
			m[k] = decodedValue(v)
		}
	}
	var (
		rec *Record
		err error
	)
	if !snap.Exists {
		rec, err = t.NewRecord(snap.Fields)
	} else {
		row := make(map[string]any, len(snap.Fields))
		for k, v := range snap.Fields {
			row[k] = v
		}
		for k, v := range snap.Original {
			row[k] = v
		}
		pk := make([]any, len(t.def.PrimaryKey))
		for i, f := range t.def.PrimaryKey {
			pk[i] = row[f]
		}
		if loaded, ok := t.Lookup(pk...); ok {
			return loaded, nil
		}
		if rec, err = t.Hydrate(row); err == nil {
			for k := range snap.Original {
				if err = rec.Set(k, snap.Fields[k]); err != nil {
					break
				}
			}
		}
	}
	if err != nil {
		return nil, err
	}
	for k, v := range snap.Mapped {
		rec.SetMapped(k, v)
	}
	return rec, nil
}

// decodedValue narrows loosely decoded integers to int64.
func decodedValue(v any) any {
	if u, ok := v.(uint64); ok && u <= math.MaxInt64 {
		return int64(u)
	}
	return v
}
