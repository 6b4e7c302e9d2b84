package archive

import (
	"context"
	"sync"
)

// MemoryArchive is an in-process SessionArchive used when no REDIS_URL is
// configured. History does not survive a restart.
type MemoryArchive struct {
	mu       sync.Mutex
	sessions map[string][][]byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{sessions: make(map[string][][]byte)}
}

func (a *MemoryArchive) Append(_ context.Context, sessionID string, message []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]byte, len(message))
	copy(cp, message)
	a.sessions[sessionID] = append(a.sessions[sessionID], cp)
	return nil
}

func (a *MemoryArchive) History(_ context.Context, sessionID string) ([][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	messages := make([][]byte, len(a.sessions[sessionID]))
	for i, m := range a.sessions[sessionID] {
		cp := make([]byte, len(m))
		copy(cp, m)
		messages[i] = cp
	}
	return messages, nil
}
