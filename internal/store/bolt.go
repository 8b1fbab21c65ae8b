package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Database layout.
var (
	bucketRecords  = []byte("tracked_records")
	bucketSettings = []byte("settings")
	bucketCache    = []byte("provider_cache")
)

const (
	dbFileName      = "zonewarden.db"
	schemaVersion   = "1"
	schemaVersionKy = "schema_version"
)

// boltPersister is the production durability backend.
type boltPersister struct {
	db *bolt.DB
}

func openBolt(dataDir string) (*boltPersister, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(dataDir, dbFileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketSettings, bucketCache} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		b := tx.Bucket(bucketSettings)
		if b.Get([]byte(schemaVersionKy)) == nil {
			return b.Put([]byte(schemaVersionKy), []byte(schemaVersion))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}

	return &boltPersister{db: db}, nil
}

func (p *boltPersister) LoadAll() ([]TrackedRecord, error) {
	var out []TrackedRecord
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var rec TrackedRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding record %q: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (p *boltPersister) Put(rec TrackedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(rec.Key()), data)
	})
}

func (p *boltPersister) Delete(key string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete([]byte(key))
	})
}

func (p *boltPersister) PutSetting(name string, value []byte) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(name), value)
	})
}

func (p *boltPersister) GetSetting(name string) ([]byte, error) {
	var out []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSettings).Get([]byte(name)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (p *boltPersister) PutCache(name string, value []byte) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(name), value)
	})
}

func (p *boltPersister) GetCache(name string) ([]byte, error) {
	var out []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketCache).Get([]byte(name)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (p *boltPersister) Close() error {
	return p.db.Close()
}
