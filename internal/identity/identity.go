package identity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Source produces identifiers for jobs and stored resources. It is injected
// wherever identifiers are assigned so that job construction stays
// deterministic under test; nothing reaches for a global generator.
type Source interface {
	NewID() string
}

// UUIDSource is the production source, backed by random UUIDs.
type UUIDSource struct{}

func (UUIDSource) NewID() string {
	return uuid.New().String()
}

// SequenceSource hands out "<prefix>-1", "<prefix>-2", ... and is safe for
// concurrent use. Tests use it to get stable identifiers.
type SequenceSource struct {
	prefix string
	mu     sync.Mutex
	next   int
}

func NewSequenceSource(prefix string) *SequenceSource {
	return &SequenceSource{prefix: prefix}
}

func (s *SequenceSource) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("%s-%d", s.prefix, s.next)
}
