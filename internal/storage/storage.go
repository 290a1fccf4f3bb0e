// Package storage keeps dataset snapshots in a BoltDB file.
//
// A snapshot is written once by the import tool and read back by the server
// at startup. Rows are keyed by their big-endian position so a cursor walk
// returns them in dataset order.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.etcd.io/bbolt"

	"loanscore/internal/dataset"
)

const (
	metaBucket = "meta" // Bucket name for snapshot metadata
	rowsBucket = "rows" // Bucket name for encoded dataset rows

	snapshotKey = "snapshot"
)

// Snapshot describes the stored dataset.
type Snapshot struct {
	Source     string              `json:"source"`
	Columns    []string            `json:"columns"`
	Categories map[string][]string `json:"categories,omitempty"`
	Rows       int                 `json:"rows"`
	SavedAt    time.Time           `json:"saved_at"`
}

// Store provides persistent storage for dataset snapshots using BoltDB.
type Store struct {
	db   *bbolt.DB // BoltDB database instance
	path string
}

// New opens (or creates) the snapshot database at dbPath for writing.
func New(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(rowsBucket)); err != nil {
			return fmt.Errorf("create rows bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: dbPath}, nil
}

// Open opens an existing snapshot database read-only. It never creates the
// file or its buckets.
func Open(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveDataset replaces the stored snapshot with ds in a single transaction.
func (s *Store) SaveDataset(ds *dataset.Dataset, source string) error {
	snapshot := Snapshot{
		Source:     source,
		Columns:    ds.Columns(),
		Categories: ds.Categories,
		Rows:       ds.Len(),
		SavedAt:    time.Now().UTC(),
	}

	meta, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(rowsBucket)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("clear rows bucket: %w", err)
		}
		rows, err := tx.CreateBucket([]byte(rowsBucket))
		if err != nil {
			return fmt.Errorf("create rows bucket: %w", err)
		}

		err = ds.Each(func(index int, values []float64) error {
			return rows.Put(encodeKey(index), encodeValues(values))
		})
		if err != nil {
			return fmt.Errorf("store rows: %w", err)
		}

		return tx.Bucket([]byte(metaBucket)).Put([]byte(snapshotKey), meta)
	})
}

// Snapshot returns the stored snapshot metadata.
func (s *Store) Snapshot() (Snapshot, error) {
	var snapshot Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		var data []byte
		if meta := tx.Bucket([]byte(metaBucket)); meta != nil {
			data = meta.Get([]byte(snapshotKey))
		}
		if data == nil {
			return fmt.Errorf("no dataset snapshot in %s", s.path)
		}
		return json.Unmarshal(data, &snapshot)
	})

	return snapshot, err
}

// LoadDataset reads the stored snapshot back into a Dataset.
func (s *Store) LoadDataset() (*dataset.Dataset, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, 0, snapshot.Rows)
	err = s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rowsBucket))
		if bucket == nil {
			return fmt.Errorf("no rows bucket in %s", s.path)
		}
		c := bucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			if want := len(rows); decodeKey(k) != want {
				return fmt.Errorf("row key %d out of sequence, expected %d", decodeKey(k), want)
			}
			values, err := decodeValues(v, len(snapshot.Columns))
			if err != nil {
				return fmt.Errorf("row %d: %w", len(rows), err)
			}
			rows = append(rows, values)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(rows) != snapshot.Rows {
		return nil, fmt.Errorf("snapshot lists %d rows, found %d", snapshot.Rows, len(rows))
	}

	return dataset.New(snapshot.Columns, rows, snapshot.Categories)
}

func encodeKey(index int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}

func decodeKey(key []byte) int {
	return int(binary.BigEndian.Uint64(key))
}

func encodeValues(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeValues(buf []byte, width int) ([]float64, error) {
	if len(buf) != 8*width {
		return nil, fmt.Errorf("encoded row has %d bytes, expected %d", len(buf), 8*width)
	}
	values := make([]float64, width)
	for i := range values {
		values[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[8*i:]))
	}
	return values, nil
}
