// Package kv persists container records in a single-file bbolt database.
// A record is a flat map from property names to values; keys starting
// with "_" are internal slots never exposed through the RPC surface.
// Values are gob encoded inside one bucket keyed by container name.
package kv

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Record is the serialized container descriptor
type Record map[string]string

const internalPrefix = "_"

// IsInternal reports whether key is an internal slot
func IsInternal(key string) bool {
	return len(key) > 0 && key[:1] == internalPrefix
}

var containersBucket = []byte("containers")

// Store is a bbolt backed key-value store of container records
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file and ensures the containers
// bucket exists. The caller may assume durability once Save returns.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open kv %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(containersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "init kv %s", path)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save overwrites the record stored under name
func (s *Store) Save(name string, rec Record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return errors.Wrapf(err, "encode record %s", name)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(containersBucket).Put([]byte(name), buf.Bytes())
	})
	return errors.Wrapf(err, "save record %s", name)
}

// Load reads the record stored under name; a missing name is an error
func (s *Store) Load(name string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(containersBucket).Get([]byte(name))
		if v == nil {
			return errors.Errorf("record %s not found", name)
		}
		return gob.NewDecoder(bytes.NewReader(v)).Decode(&rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadAll reads every stored record. Records that fail to decode are
// returned by name with a nil record so restore can treat them as torn
// writes instead of aborting the whole boot.
func (s *Store) LoadAll() (map[string]Record, error) {
	out := make(map[string]Record)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(containersBucket).ForEach(func(k, v []byte) error {
			var rec Record
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
				out[string(k)] = nil
				return nil
			}
			out[string(k)] = rec
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "load all records")
	}
	return out, nil
}

// Remove deletes the record stored under name; removing a missing name
// is a no-op
func (s *Store) Remove(name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(containersBucket).Delete([]byte(name))
	})
	return errors.Wrapf(err, "remove record %s", name)
}
