package kvstore

import (
	"sync"

	"github.com/docuforge/docuforge/common/cryptox"
)

// SessionKeys holds the at-rest encryption key for the lifetime of the
// process. The key is generated exactly once per session, never persisted,
// and read-only after creation; restarting the process renders previously
// sealed records unreadable, which is the intended contract.
type SessionKeys struct {
	mu     sync.Mutex
	key    []byte
	crypto *cryptox.Provider
}

// NewSessionKeys creates a session key holder.
func NewSessionKeys(crypto *cryptox.Provider) *SessionKeys {
	return &SessionKeys{crypto: crypto}
}

// Key returns the session key, generating it on first use.
func (s *SessionKeys) Key() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		key, err := s.crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return s.key, nil
}
