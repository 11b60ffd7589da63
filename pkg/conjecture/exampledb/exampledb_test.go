package exampledb_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/conjecture/pkg/conjecture/exampledb"
)

type backend struct {
	name string
	open func(t *testing.T) exampledb.DB
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(*testing.T) exampledb.DB { return exampledb.NewMemory() }},
		{name: "directory", open: func(t *testing.T) exampledb.DB {
			db, err := exampledb.NewDirectory(filepath.Join(t.TempDir(), "examples"))
			require.NoError(t, err)

			return db
		}},
		{name: "bolt", open: func(t *testing.T) exampledb.DB {
			db, err := exampledb.OpenBolt(filepath.Join(t.TempDir(), "nested", "examples.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			return db
		}},
	}
}

func Test_Backends_Store_Lookup_And_Delete(t *testing.T) {
	t.Parallel()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()

			db := b.open(t)

			_, found, err := db.Lookup([]byte("missing"))
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, db.Store([]byte("k1"), []byte{1, 2, 3}))
			require.NoError(t, db.Store([]byte("k1"), []byte{4, 5}))

			got, found, err := db.Lookup([]byte("k1"))
			require.NoError(t, err)
			require.True(t, found)

			if diff := cmp.Diff([]byte{4, 5}, got); diff != "" {
				t.Fatalf("Lookup mismatch (-want +got):\n%s", diff)
			}

			// A delete of an outdated value leaves the newer value in place.
			require.NoError(t, db.Delete([]byte("k1"), []byte{1, 2, 3}))

			_, found, err = db.Lookup([]byte("k1"))
			require.NoError(t, err)
			assert.True(t, found)

			require.NoError(t, db.Delete([]byte("k1"), []byte{4, 5}))

			_, found, err = db.Lookup([]byte("k1"))
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, db.Delete([]byte("never-stored"), []byte{1}))
		})
	}
}

func Test_Backends_List_Keys_In_Byte_Order(t *testing.T) {
	t.Parallel()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()

			db := b.open(t)

			for _, k := range []string{"b", "c", "a"} {
				require.NoError(t, db.Store([]byte(k), []byte(k)))
			}

			keys, err := db.Keys()
			require.NoError(t, err)

			if diff := cmp.Diff([][]byte{[]byte("a"), []byte("b"), []byte("c")}, keys); diff != "" {
				t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_Backends_Handle_Concurrent_Stores(t *testing.T) {
	t.Parallel()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()

			db := b.open(t)

			var wg sync.WaitGroup

			for i := range 16 {
				wg.Add(1)

				go func() {
					defer wg.Done()

					assert.NoError(t, db.Store([]byte("shared"), []byte{byte(i)}))
				}()
			}

			wg.Wait()

			got, found, err := db.Lookup([]byte("shared"))
			require.NoError(t, err)
			require.True(t, found)
			assert.Len(t, got, 1)
		})
	}
}

func Test_Directory_Skips_Lock_And_Foreign_Files_When_Listing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	db, err := exampledb.NewDirectory(dir)
	require.NoError(t, err)
	require.NoError(t, db.Store([]byte{0xca, 0xfe}, []byte{1}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz.example"), []byte("x"), 0o644))

	_, err = os.Stat(filepath.Join(dir, "cafe.example.lock"))
	require.NoError(t, err, "store should leave its lock file next to the example")

	keys, err := db.Keys()
	require.NoError(t, err)

	if diff := cmp.Diff([][]byte{{0xca, 0xfe}}, keys); diff != "" {
		t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
	}
}

func Test_Directory_Returns_Error_When_Path_Is_Empty(t *testing.T) {
	t.Parallel()

	_, err := exampledb.NewDirectory("")
	require.Error(t, err)
}

func Test_Bolt_Persists_Examples_When_Reopened(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "examples.db")

	db, err := exampledb.OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, db.Store([]byte("k"), []byte{9, 9}))
	require.NoError(t, db.Close())

	_, _, err = db.Lookup([]byte("k"))
	if !errors.Is(err, exampledb.ErrClosed) {
		t.Fatalf("Lookup after Close error = %v, want ErrClosed", err)
	}

	db, err = exampledb.OpenBolt(path)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	got, found, err := db.Lookup([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{9, 9}, got)
}

func Test_Open_Selects_Backend_By_Kind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		kind string
		path string
		want any
	}{
		{kind: exampledb.KindMemory, want: &exampledb.Memory{}},
		{kind: exampledb.KindDirectory, path: filepath.Join(dir, "d"), want: &exampledb.Directory{}},
		{kind: exampledb.KindBolt, path: filepath.Join(dir, "b.db"), want: &exampledb.Bolt{}},
	}

	for _, tt := range tests {
		db, err := exampledb.Open(tt.kind, tt.path)
		require.NoError(t, err, tt.kind)
		assert.IsType(t, tt.want, db)
		require.NoError(t, db.Close())
	}

	_, err := exampledb.Open("redis", "")
	require.ErrorIs(t, err, exampledb.ErrUnknownKind)
}
