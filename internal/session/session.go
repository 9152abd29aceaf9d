package session

import (
	"github.com/christianmark/transmit/internal/models"
)

// Key is the storage key under which the chosen username persists.
const Key = "transmit_user"

// Store tracks the current username for one viewer.
// A name is only ever stored in its normalized form.
type Store struct {
	kv KV
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

// SetName normalizes raw, persists it and returns the stored name.
// Nothing is persisted when the name is invalid.
func (s *Store) SetName(raw string) (string, error) {
	name, err := models.NormalizeName(raw)
	if err != nil {
		return "", err
	}
	if err := s.kv.Set(Key, name); err != nil {
		return "", err
	}
	return name, nil
}

// CurrentName returns the persisted name. A stored value that is no longer
// valid is treated as absent.
func (s *Store) CurrentName() (string, bool) {
	v, ok, err := s.kv.Get(Key)
	if err != nil || !ok {
		return "", false
	}
	name, err := models.NormalizeName(v)
	if err != nil || name != v {
		return "", false
	}
	return name, true
}

// Clear removes the persisted name.
func (s *Store) Clear() error {
	return s.kv.Delete(Key)
}
