package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vouchermarket/storage"
)

// Manager is the typed persistence layer shared by every engine. Records are
// RLP-encoded under keccak-hashed prefixed keys in a plain KV backend, so the
// same Manager runs over the in-memory store in tests and LevelDB in the
// daemon.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager over the supplied backend.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var errNilManager = errors.New("state: manager not initialised")

func hashKey(prefix string, suffix []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(suffix))
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return ethcrypto.Keccak256(buf)
}

func idSuffix(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func (m *Manager) put(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilManager
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode: %w", err)
	}
	return true, nil
}

// nextID increments and returns the named monotonic counter. Ids start at 1
// and are never reused; engines draw one only after all validation passed.
func (m *Manager) nextID(counter string) (uint64, error) {
	key := hashKey("market/seq/", []byte(counter))
	var current uint64
	if _, err := m.get(key, &current); err != nil {
		return 0, err
	}
	current++
	if err := m.put(key, current); err != nil {
		return 0, err
	}
	return current, nil
}
