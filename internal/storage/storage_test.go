package storage

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"loanscore/internal/dataset"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "loanscore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "loanscore.db")

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	// Check if database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	assert.Equal(t, dbPath, store.Path())
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir", "loanscore.db"))
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	err := store.Close()
	if err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestSaveAndLoadDataset(t *testing.T) {
	store := newTestStore(t)

	ds, err := dataset.New(
		[]string{"AMT_CREDIT", "CODE_GENDER", "EXT_SOURCE_2"},
		[][]float64{
			{406597.5, 0, 0.262948},
			{1293502.5, 1, math.NaN()},
		},
		map[string][]string{"CODE_GENDER": {"M", "F"}},
	)
	require.NoError(t, err)

	require.NoError(t, store.SaveDataset(ds, "applicants.csv"))

	snapshot, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "applicants.csv", snapshot.Source)
	assert.Equal(t, 2, snapshot.Rows)
	assert.False(t, snapshot.SavedAt.IsZero())

	loaded, err := store.LoadDataset()
	require.NoError(t, err)
	assert.Equal(t, ds.Columns(), loaded.Columns())
	assert.Equal(t, ds.Categories, loaded.Categories)
	require.Equal(t, ds.Len(), loaded.Len())

	for i := 0; i < ds.Len(); i++ {
		want, err := dataset.ResolveRow(ds, i)
		require.NoError(t, err)
		got, err := dataset.ResolveRow(loaded, i)
		require.NoError(t, err)

		for j := range want.Values {
			if want.Missing(j) {
				assert.True(t, got.Missing(j))
				continue
			}
			assert.Equal(t, want.Values[j], got.Values[j])
		}
	}
}

func TestSaveDataset_ReplacesPrevious(t *testing.T) {
	store := newTestStore(t)

	first, err := dataset.New([]string{"a"}, [][]float64{{1}, {2}, {3}}, nil)
	require.NoError(t, err)
	second, err := dataset.New([]string{"b", "c"}, [][]float64{{4, 5}}, nil)
	require.NoError(t, err)

	require.NoError(t, store.SaveDataset(first, "first.csv"))
	require.NoError(t, store.SaveDataset(second, "second.csv"))

	loaded, err := store.LoadDataset()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, loaded.Columns())
	assert.Equal(t, 1, loaded.Len())
}

func TestLoadDataset_NoSnapshot(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadDataset()
	assert.Error(t, err)
}

func TestLoadDataset_CorruptRow(t *testing.T) {
	store := newTestStore(t)

	ds, err := dataset.New([]string{"a", "b"}, [][]float64{{1, 2}}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveDataset(ds, "test"))

	err = store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(rowsBucket)).Put(encodeKey(0), []byte{1, 2, 3})
	})
	require.NoError(t, err)

	_, err = store.LoadDataset()
	assert.Error(t, err)
}

func TestStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "loanscore.db")

	store, err := New(dbPath)
	require.NoError(t, err)
	ds, err := dataset.New([]string{"a"}, [][]float64{{42}}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveDataset(ds, "test"))
	require.NoError(t, store.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadDataset()
	require.NoError(t, err)
	row, err := dataset.ResolveRow(loaded, 0)
	require.NoError(t, err)
	assert.Equal(t, 42.0, row.Values[0])
}

func TestOpen_MissingFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "loanscore.db")

	_, err := Open(dbPath)
	require.Error(t, err)

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "read-only open must not create the file")
}

func TestOpen_ReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "loanscore.db")
	store, err := New(dbPath)
	require.NoError(t, err)
	ds, err := dataset.New([]string{"a"}, [][]float64{{1}}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveDataset(ds, "test"))
	require.NoError(t, store.Close())

	readonly, err := Open(dbPath)
	require.NoError(t, err)
	defer readonly.Close()

	assert.Error(t, readonly.SaveDataset(ds, "again"))
	loaded, err := readonly.LoadDataset()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestKeyOrdering(t *testing.T) {
	// Big-endian keys must sort in row order for cursor walks
	assert.Less(t, string(encodeKey(9)), string(encodeKey(10)))
	assert.Less(t, string(encodeKey(255)), string(encodeKey(256)))
	assert.Equal(t, 1234, decodeKey(encodeKey(1234)))
}
