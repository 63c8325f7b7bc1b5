package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	usersBucket         = []byte("users")
	timetableBucket     = []byte("timetable")
	notificationsBucket = []byte("notifications")
	messagesBucket      = []byte("messages")

	buckets = [][]byte{usersBucket, timetableBucket, notificationsBucket, messagesBucket}
)

// DB is a single-file store. Users are keyed by ID; every other bucket is keyed
// by a sequence number so that cursors walk the records in insertion order.
type DB struct {
	db *bbolt.DB
}

func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "creating bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// nextKey returns the next sequence key of the bucket. Must run in a writable tx.
func nextKey(b *bbolt.Bucket) ([]byte, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return nil, errors.Wrap(err, "getting next sequence")
	}
	return seqKey(seq), nil
}

func put[T any](b *bbolt.Bucket, key []byte, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	return b.Put(key, data)
}

// forEach decodes every record of the bucket, in key order, and passes it to fn.
func forEach[T any](b *bbolt.Bucket, fn func(key []byte, value T) error) error {
	return b.ForEach(func(k, v []byte) error {
		var value T
		if err := json.Unmarshal(v, &value); err != nil {
			return errors.Wrapf(err, "decoding record %x", k)
		}
		return fn(k, value)
	})
}

// forEachReverse is forEach walking from the last key to the first.
func forEachReverse[T any](b *bbolt.Bucket, fn func(key []byte, value T) error) error {
	c := b.Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		var value T
		if err := json.Unmarshal(v, &value); err != nil {
			return errors.Wrapf(err, "decoding record %x", k)
		}
		if err := fn(k, value); err != nil {
			return err
		}
	}
	return nil
}
