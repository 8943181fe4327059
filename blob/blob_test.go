package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffml/skiff/pkg/errors"
)

func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "data/train/train.csv", strings.NewReader("1.0,2.0\n")))

		b, err := GetBytes(ctx, s, "data/train/train.csv")
		require.NoError(t, err)
		assert.Equal(t, "1.0,2.0\n", string(b))
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, PutBytes(ctx, s, "k", []byte("old")))
		require.NoError(t, PutBytes(ctx, s, "k", []byte("new")))

		b, err := GetBytes(ctx, s, "k")
		require.NoError(t, err)
		assert.Equal(t, "new", string(b))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "no/such/key")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("Exists", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, PutBytes(ctx, s, "present", []byte("x")))

		ok, err := s.Exists(ctx, "present")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, PutBytes(ctx, s, "k", []byte("x")))
		require.NoError(t, s.Delete(ctx, "k"))

		ok, err := s.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		// Second delete is a no-op.
		require.NoError(t, s.Delete(ctx, "k"))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Error(t, s.Put(canceled, "k", strings.NewReader("x")))
		_, err := s.Get(canceled, "k")
		assert.Error(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestDiskStore(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		s, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestDiskStoreRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside", "/abs/path", "a/../../b"} {
		assert.Error(t, s.Put(ctx, key, strings.NewReader("x")), key)
	}
}

func TestMemoryStoreLen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, PutBytes(ctx, s, "a", []byte("1")))
	require.NoError(t, PutBytes(ctx, s, "b", []byte("2")))
	assert.Equal(t, 2, s.Len())
}
