// Package store is the peer's local durability: the session descriptor that
// survives a restart (the analog of a browser tab's saved session) and the
// host's last committed snapshot keyed by room code, which lets a restarted
// host resume authority without waiting for anyone. Everything here is
// best-effort; a write failure never interrupts a match.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/duelsync/duelsync/internal/game"
)

const (
	snapshotBucket = "snapshots"
	sessionBucket  = "session"
	sessionKey     = "current"
)

// ErrNotFound is returned when no entry exists for the requested key.
var ErrNotFound = errors.New("not found")

// Descriptor is what a peer needs to rejoin its room after a restart.
type Descriptor struct {
	RoomCode string         `json:"roomCode"`
	Host     bool           `json:"host"`
	Name     string         `json:"name"`
	View     string         `json:"view"`
	Settings *game.Settings `json:"settings,omitempty"` // host's room config
}

// DB wraps a bbolt file.
type DB struct {
	db *bolt.DB
}

// Open opens or creates the database file.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close releases the file.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveSnapshot stores the host's committed document under its room code.
func (d *DB) SaveSnapshot(roomCode string, st game.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return b.Put([]byte(roomCode), data)
	}); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// LoadSnapshot fetches the stored document for a room code.
func (d *DB) LoadSnapshot(roomCode string) (game.State, error) {
	var st game.State
	if err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(roomCode))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}
		return nil
	}); err != nil {
		return game.State{}, err
	}
	return st, nil
}

// DeleteSnapshot drops the stored document for a room code.
func (d *DB) DeleteSnapshot(roomCode string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(roomCode))
	})
}

// SaveDescriptor stores the peer's session descriptor.
func (d *DB) SaveDescriptor(desc Descriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return b.Put([]byte(sessionKey), data)
	}); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// LoadDescriptor fetches the saved session descriptor, if any.
func (d *DB) LoadDescriptor() (Descriptor, error) {
	var desc Descriptor
	if err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sessionBucket))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(sessionKey))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &desc); err != nil {
			return fmt.Errorf("unmarshal descriptor: %w", err)
		}
		return nil
	}); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// ClearDescriptor removes the saved session, e.g. on leaving a room.
func (d *DB) ClearDescriptor() error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sessionBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(sessionKey))
	})
}
