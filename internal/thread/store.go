package thread

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/schema"
)

// ErrThreadNotFound is returned for operations on unknown thread ids.
var ErrThreadNotFound = errors.New("thread not found")

// Store holds all live threads. It is multi-tenant: threads are fully
// independent and there is no cross-thread visibility.
type Store struct {
	mu        sync.RWMutex
	threads   map[string]*Thread
	validator *schema.Validator
	logger    *zap.Logger
}

// NewStore creates a thread store. A nil validator means the default schema
// validator (no catalog enforcement).
func NewStore(validator *schema.Validator, logger *zap.Logger) *Store {
	if validator == nil {
		validator = &schema.Validator{}
	}
	return &Store{
		threads:   make(map[string]*Thread),
		validator: validator,
		logger:    logger,
	}
}

// New creates a thread with a fresh identity.
func (s *Store) New() *Thread {
	t := &Thread{id: uuid.New().String(), validator: s.validator}
	s.mu.Lock()
	s.threads[t.id] = t
	s.mu.Unlock()
	s.logger.Info("thread created", zap.String("id", t.id))
	return t
}

// Get returns a thread by id.
func (s *Store) Get(id string) (*Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	return t, ok
}

// Restart discards all state of the given thread and issues a fresh thread
// identity. This is the only supported abort mechanism and is unconditional.
func (s *Store) Restart(id string) *Thread {
	s.mu.Lock()
	delete(s.threads, id)
	s.mu.Unlock()
	s.logger.Info("thread restarted", zap.String("old_id", id))
	return s.New()
}

// IDs lists all live thread ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.threads))
	for id := range s.threads {
		out = append(out, id)
	}
	return out
}

// Restore rebuilds a thread from a persisted snapshot, revalidating the
// stored configuration. A snapshot claiming validity whose config no longer
// validates degrades to a partial rather than failing.
func (s *Store) Restore(snap Snapshot) *Thread {
	t := &Thread{
		id:        snap.ThreadID,
		validator: s.validator,
		mock:      snap.Mock,
		messages:  snap.Messages,
		todos:     snap.Todos,
		pending:   snap.Pending,
		lastBuilt: snap.LastBuilt,
		updatedAt: snap.UpdatedAt,
	}
	if snap.Config != nil {
		if cfg, err := s.validator.Validate(snap.Config); err == nil {
			t.config = ConfigState{kind: ConfigValidated, validated: cfg}
			t.lastValidated = cfg.Normalized()
		} else {
			t.config = ConfigState{kind: ConfigPartial, partial: snap.Config}
			if snap.ConfigValid {
				s.logger.Warn("restored config no longer validates, holding as partial",
					zap.String("thread", snap.ThreadID), zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	s.threads[t.id] = t
	s.mu.Unlock()
	return t
}
