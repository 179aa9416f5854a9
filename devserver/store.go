package devserver

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/pebble/v2"

	"github.com/gosuda/chat-session/protocol"
)

// Store persists log elements in a PebbleDB key-value store. Keys are the
// 8-byte big-endian seqN, so iteration order is log order.
type Store struct {
	db *pebble.DB
}

// OpenStore opens (or creates) the store in dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

func seqKey(n int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(n))
	return key
}

// Append writes el under its seqN.
func (s *Store) Append(el protocol.LogElement) error {
	val, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("marshal element %d: %w", el.SeqN, err)
	}
	return s.db.Set(seqKey(el.SeqN), val, pebble.Sync)
}

// LoadRecent returns up to limit elements with the highest seqN, oldest
// first. A limit <= 0 loads everything.
func (s *Store) LoadRecent(limit int) ([]protocol.LogElement, error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("new iter: %w", err)
	}
	defer func() { _ = it.Close() }()

	var out []protocol.LogElement
	for valid := it.Last(); valid; valid = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var el protocol.LogElement
		if err := json.Unmarshal(it.Value(), &el); err != nil {
			continue
		}
		out = append(out, el)
	}
	slices.Reverse(out)
	return out, nil
}

// LastSeq returns the highest stored seqN, or 0 for an empty store.
func (s *Store) LastSeq() (int64, error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return 0, fmt.Errorf("new iter: %w", err)
	}
	defer func() { _ = it.Close() }()
	if !it.Last() || len(it.Key()) < 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(it.Key()[:8])), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
