package veloxrm_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloxrm"
)

// TestRecord_InternalID tests identifiers of new and persisted records.
func TestRecord_InternalID(t *testing.T) {
	t.Parallel()
	rm, _ := newMockManager(t)

	rec := newRecord(t, rm, "user", map[string]any{"username": "ada"})
	assert.False(t, rec.Exists())
	assert.True(t, rec.IsNew())
	assert.Equal(t, "_new_"+rec.Token(), rec.InternalID())
	assert.Equal(t, rec.InternalID(), rec.InternalID())
	got, ok := rm.Table("user").Repository().Get(rec.InternalID())
	require.True(t, ok)
	assert.Same(t, rec, got)

	loaded := hydrate(t, rm, "user", map[string]any{"id": int64(7), "username": "bob"})
	assert.True(t, loaded.Exists())
	assert.Equal(t, "7", loaded.InternalID())
	assert.Equal(t, []any{int64(7)}, loaded.Identifier())
	assert.Equal(t, "user(7)", loaded.String())

	t.Run("identity_map", func(t *testing.T) {
		again := hydrate(t, rm, "user", map[string]any{"id": int64(7), "username": "changed"})
		assert.Same(t, loaded, again)
		assert.Equal(t, "bob", again.Get("username"))
		found, ok := rm.Table("user").Lookup(7)
		require.True(t, ok)
		assert.Same(t, loaded, found)
	})

	t.Run("composite", func(t *testing.T) {
		assert.NotEqual(t, loaded.Token(), rec.Token())
	})
}

// TestRecord_Modified tests modification tracking against persisted values.
func TestRecord_Modified(t *testing.T) {
	t.Parallel()
	rm, _ := newMockManager(t)

	rec := hydrate(t, rm, "editor", map[string]any{"id": int64(1), "name": "Eve"})
	assert.False(t, rec.IsModified())
	assert.Empty(t, rec.ModifiedFields())

	require.NoError(t, rec.Set("name", "Eva"))
	assert.True(t, rec.IsModified())
	assert.True(t, rec.IsFieldModified("name"))
	assert.Equal(t, []string{"name"}, rec.ModifiedFields())
	assert.Equal(t, "Eve", rec.Original("name"))
	assert.Equal(t, "Eva", rec.Get("name"))

	require.NoError(t, rec.Set("name", "Eve"))
	assert.False(t, rec.IsModified(), "setting the original value back clears the modification")

	t.Run("numeric_widths", func(t *testing.T) {
		require.NoError(t, rec.Set("id", 1))
		assert.False(t, rec.IsModified())
		assert.Equal(t, "1", rec.InternalID())
	})

	t.Run("unsigned_range", func(t *testing.T) {
		big := hydrate(t, rm, "editor", map[string]any{"id": int64(2), "name": uint64(math.MaxUint64)})
		require.NoError(t, big.Set("name", int64(-1)))
		assert.True(t, big.IsModified(), "a large unsigned value does not wrap to a negative one")
		require.NoError(t, big.Set("name", uint(math.MaxUint)))
		assert.False(t, big.IsModified())
		require.NoError(t, big.Set("name", uint64(1<<63)))
		assert.True(t, big.IsModified())
	})

	t.Run("new_record", func(t *testing.T) {
		n := newRecord(t, rm, "author", map[string]any{"name": "Ada"})
		assert.True(t, n.IsModified())
		assert.Equal(t, []string{"name"}, n.ModifiedFields())
	})
}

// TestRecord_Set tests field validation.
func TestRecord_Set(t *testing.T) {
	t.Parallel()
	rm, _ := newMockManager(t)

	rec := newRecord(t, rm, "user", nil)
	err := rec.Set("age", 3)
	require.Error(t, err)
	assert.True(t, veloxrm.IsValidationError(err))
	assert.ErrorIs(t, err, veloxrm.ErrUnknownField)

	_, err = rm.Table("user").NewRecord(map[string]any{"nickname": "x"})
	assert.ErrorIs(t, err, veloxrm.ErrUnknownField)
	assert.Len(t, rm.Table("user").Records(), 1, "failed records are not registered")

	require.NoError(t, rec.Set("username", []byte("ada")))
	assert.Equal(t, "ada", rec.Get("username"))
	assert.True(t, rec.Has("username"))
	assert.False(t, rec.Has("id"))
}

// TestRecord_PrimaryKeyChange tests re-keying on a manual key edit.
func TestRecord_PrimaryKeyChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rm, _ := newMockManager(t)

	user := hydrate(t, rm, "user", map[string]any{"id": int64(1), "username": "ada"})
	other := hydrate(t, rm, "user", map[string]any{"id": int64(2), "username": "bob"})
	author := hydrate(t, rm, "author", map[string]any{"id": int64(10), "name": "Ada", "user_id": int64(1)})

	ref, err := author.One(ctx, "User")
	require.NoError(t, err)
	require.Same(t, user, ref)

	t.Run("collision", func(t *testing.T) {
		err := user.Set("id", int64(2))
		require.Error(t, err)
		assert.True(t, veloxrm.IsIdentityError(err))
		assert.Equal(t, int64(1), user.Get("id"))
		assert.Equal(t, "1", user.InternalID())
		assert.False(t, user.IsModified())
		got, _ := rm.Table("user").Lookup(2)
		assert.Same(t, other, got)
	})

	require.NoError(t, user.Set("id", int64(5)))
	assert.Equal(t, "5", user.InternalID())
	got, ok := rm.Table("user").Lookup(5)
	require.True(t, ok)
	assert.Same(t, user, got)
	_, ok = rm.Table("user").Lookup(1)
	assert.False(t, ok)
	assert.Equal(t, int64(1), user.Original("id"))

	rel, ok := rm.Relation("user", "Author")
	require.True(t, ok)
	owner, err := rel.LoadedReference(user, "Author")
	require.NoError(t, err)
	assert.Same(t, author, owner, "references survive the key change")
}

// TestRecord_MapRoundTrip tests ToMap and FromMap.
func TestRecord_MapRoundTrip(t *testing.T) {
	t.Parallel()
	rm, _ := newMockManager(t)

	rec := newRecord(t, rm, "editor", map[string]any{"name": "Eve"})
	copied := newRecord(t, rm, "editor", nil)
	require.NoError(t, copied.FromMap(rec.ToMap()))
	assert.Equal(t, rec.ToMap(), copied.ToMap())

	rec.SetMapped("display", "EVE")
	v, ok := rec.Mapped("display")
	require.True(t, ok)
	assert.Equal(t, "EVE", v)
	assert.NotContains(t, rec.ToMap(), "display")
	_, ok = copied.Mapped("display")
	assert.False(t, ok)
}

// TestRecord_MarshalBinary tests the binary snapshot codec.
func TestRecord_MarshalBinary(t *testing.T) {
	t.Parallel()
	rm, _ := newMockManager(t)

	rec := hydrate(t, rm, "author", map[string]any{"id": int64(3), "name": "Ada", "user_id": nil, "editor_id": int64(9)})
	require.NoError(t, rec.Set("name", "Ada L."))
	rec.SetMapped("score", 4.5)
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	t.Run("loaded", func(t *testing.T) {
		got, err := rm.Table("author").UnmarshalRecord(data)
		require.NoError(t, err)
		assert.Same(t, rec, got)
	})

	t.Run("fresh_session", func(t *testing.T) {
		other, _ := newMockManager(t)
		got, err := other.Table("author").UnmarshalRecord(data)
		require.NoError(t, err)
		assert.True(t, got.Exists())
		assert.Equal(t, "3", got.InternalID())
		assert.Equal(t, "Ada L.", got.Get("name"))
		assert.Equal(t, "Ada", got.Original("name"))
		assert.Equal(t, []string{"name"}, got.ModifiedFields())
		assert.EqualValues(t, 9, got.Get("editor_id"))
		score, ok := got.Mapped("score")
		require.True(t, ok)
		assert.InDelta(t, 4.5, score, 0)
	})

	t.Run("new_record", func(t *testing.T) {
		n := newRecord(t, rm, "editor", map[string]any{"name": "Eve"})
		data, err := n.MarshalBinary()
		require.NoError(t, err)
		other, _ := newMockManager(t)
		got, err := other.Table("editor").UnmarshalRecord(data)
		require.NoError(t, err)
		assert.False(t, got.Exists())
		assert.True(t, strings.HasPrefix(got.InternalID(), "_new_"))
		assert.Equal(t, "Eve", got.Get("name"))
	})

	t.Run("wrong_table", func(t *testing.T) {
		_, err := rm.Table("editor").UnmarshalRecord(data)
		require.Error(t, err)
		_, err = rm.Table("editor").UnmarshalRecord([]byte{0xc1})
		require.Error(t, err)
	})
}
