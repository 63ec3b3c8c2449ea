package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tokensale/storage"
)

// Manager persists RLP-encoded records in a storage.Database. It implements
// the KV interface consumed by the sale ledger and policy store, so the sale
// packages stay agnostic of the backing database.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not initialised")
	}
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVPut encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVDelete removes the key if present.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	return m.db.Delete(key)
}

// KVAppend appends an already-encoded element to the list stored under key.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	var items [][]byte
	raw, err := m.db.Get(key)
	switch {
	case err == nil:
		if err := rlp.DecodeBytes(raw, &items); err != nil {
			return err
		}
	case errors.Is(err, storage.ErrKeyNotFound):
		// first element
	default:
		return err
	}
	items = append(items, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(items)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVGetList decodes the full list stored under key into out. A missing key
// yields an empty list.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			empty, encErr := rlp.EncodeToBytes([][]byte{})
			if encErr != nil {
				return encErr
			}
			return rlp.DecodeBytes(empty, out)
		}
		return err
	}
	return rlp.DecodeBytes(raw, out)
}
