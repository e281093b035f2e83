package refmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetShape(t *testing.T) {
	tests := []struct {
		name    string
		toMany  bool
		value   any
		wantErr bool
		owners  []string
	}{
		{"one_string", false, "a1", false, []string{"a1"}},
		{"one_empty_string", false, "", true, nil},
		{"one_slice", false, []string{"a1"}, true, nil},
		{"many_slice", true, []string{"a1", "a2", "a1"}, false, []string{"a1", "a2"}},
		{"many_string", true, "a1", true, nil},
		{"many_empty", true, []string{}, false, []string{}},
		{"int", false, 42, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.toMany)
			err := m.Set("u1", tt.value)
			if tt.wantErr {
				var se *ShapeError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, "u1", se.RefKey)
				assert.False(t, m.Has("u1"))
				return
			}
			require.NoError(t, err)
			assert.True(t, m.IsComplete("u1"))
			if len(tt.owners) == 0 {
				assert.Empty(t, m.OwnersOf("u1"))
			} else {
				assert.Equal(t, tt.owners, m.OwnersOf("u1"))
			}
			for _, o := range tt.owners {
				ref, ok := m.ReferenceOf(o)
				require.True(t, ok)
				assert.Equal(t, "u1", ref)
			}
		})
	}
}

func TestMap_SetNilDrops(t *testing.T) {
	m := New(true)
	require.NoError(t, m.Set("e1", []string{"a1", "a2"}))
	require.NoError(t, m.Set("e1", nil))
	assert.False(t, m.Has("e1"))
	_, ok := m.ReferenceOf("a1")
	assert.False(t, ok)
}

func TestMap_SetMovesOwner(t *testing.T) {
	m := New(true)
	require.NoError(t, m.Set("e1", []string{"a1", "a2"}))
	require.NoError(t, m.Set("e2", []string{"a2"}))
	assert.Equal(t, []string{"a1"}, m.OwnersOf("e1"))
	assert.Equal(t, []string{"a2"}, m.OwnersOf("e2"))
}

func TestMap_AddOneToOne(t *testing.T) {
	m := New(false)
	assert.Empty(t, m.Add("u1", "a1"))
	assert.Empty(t, m.Add("u1", "a1"))
	assert.False(t, m.IsComplete("u1"))

	displaced := m.Add("u1", "a2")
	assert.Equal(t, "a1", displaced)
	assert.Equal(t, []string{"a2"}, m.OwnersOf("u1"))
	_, ok := m.ReferenceOf("a1")
	assert.False(t, ok)

	// Moving a2 to u2 leaves u1 without owners.
	assert.Empty(t, m.Add("u2", "a2"))
	assert.Empty(t, m.OwnersOf("u1"))
	assert.True(t, m.Has("u1"))
}

func TestMap_AddOneToMany(t *testing.T) {
	m := New(true)
	m.Add("e1", "a1")
	m.Add("e1", "a2")
	m.Add("e1", "a1")
	assert.Equal(t, []string{"a1", "a2"}, m.OwnersOf("e1"))
	m.Remove("e1", "a1")
	assert.Equal(t, []string{"a2"}, m.OwnersOf("e1"))
	m.Remove("missing", "a2")
	assert.Equal(t, []string{"a2"}, m.OwnersOf("e1"))
}

func TestMap_FieldMappings(t *testing.T) {
	m := New(true)
	m.SetFieldMapping("tokA2", "tokE")
	m.SetFieldMapping("tokA1", "tokE")
	m.SetFieldMapping("tokA3", "tokX")
	assert.True(t, m.HasFieldMapping("tokA1"))
	ref, ok := m.FieldMapping("tokA1")
	require.True(t, ok)
	assert.Equal(t, "tokE", ref)
	assert.Equal(t, []string{"tokA1", "tokA2"}, m.OwnersMappedTo("tokE"))

	m.RemoveFieldMapping("tokA1")
	assert.False(t, m.HasFieldMapping("tokA1"))
	assert.Equal(t, []string{"tokA2"}, m.OwnersMappedTo("tokE"))
	assert.Empty(t, m.OwnersMappedTo("nope"))
}

func TestMap_UpdateReferencedIdentifier(t *testing.T) {
	m := New(true)
	m.Add("_new_e", "a1")
	m.Add("_new_e", "_new_a2")
	m.MarkComplete("_new_e")

	m.UpdateReferencedIdentifier("7", "_new_e")
	assert.False(t, m.Has("_new_e"))
	assert.Equal(t, []string{"a1", "_new_a2"}, m.OwnersOf("7"))
	assert.True(t, m.IsComplete("7"))
	for _, o := range []string{"a1", "_new_a2"} {
		ref, _ := m.ReferenceOf(o)
		assert.Equal(t, "7", ref)
	}

	// Merging into an existing entry keeps its owners first.
	m.Add("_new_f", "a3")
	m.Add("8", "a4")
	m.UpdateReferencedIdentifier("8", "_new_f")
	assert.Equal(t, []string{"a4", "a3"}, m.OwnersOf("8"))
	assert.False(t, m.IsComplete("8"))

	// Unknown keys are ignored.
	m.UpdateReferencedIdentifier("9", "missing")
	assert.False(t, m.Has("9"))
}

func TestMap_UpdateOwningIdentifier(t *testing.T) {
	m := New(true)
	m.Add("e1", "a1")
	m.Add("e1", "_new_a2")
	m.UpdateOwningIdentifier("2", "_new_a2")
	assert.Equal(t, []string{"a1", "2"}, m.OwnersOf("e1"))
	ref, ok := m.ReferenceOf("2")
	require.True(t, ok)
	assert.Equal(t, "e1", ref)
	_, ok = m.ReferenceOf("_new_a2")
	assert.False(t, ok)
}

func TestMap_SelfReference(t *testing.T) {
	m := New(true)
	// Node 1 is its own parent, node 2 is a child of 1.
	m.Add("1", "1")
	m.Add("1", "2")
	assert.Equal(t, []string{"1", "2"}, m.OwnersOf("1"))

	m.Forget("1")
	assert.False(t, m.Has("1"))
	_, ok := m.ReferenceOf("1")
	assert.False(t, ok)
	_, ok = m.ReferenceOf("2")
	assert.False(t, ok)
}

func TestMap_Forget(t *testing.T) {
	m := New(true)
	m.Add("e1", "a1")
	m.Add("e1", "a2")
	m.Forget("a1")
	assert.Equal(t, []string{"a2"}, m.OwnersOf("e1"))
	m.Forget("e1")
	assert.Equal(t, 0, m.Len())
}

func TestMap_CloneAndClear(t *testing.T) {
	m := New(false)
	m.Add("u1", "a1")
	m.SetFieldMapping("tokA", "tokU")
	c := m.Clone()

	m.Add("u1", "a2")
	m.RemoveFieldMapping("tokA")
	assert.Equal(t, []string{"a1"}, c.OwnersOf("u1"))
	assert.True(t, c.HasFieldMapping("tokA"))
	assert.False(t, c.ToMany())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.HasFieldMapping("tokA"))
	assert.Equal(t, []string{"a2"}, m.OwnersOf("u1"))
}
