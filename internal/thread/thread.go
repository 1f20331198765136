// Package thread holds per-conversation builder state: the accumulating
// agent configuration, the mock conversation, the message transcript, and
// any suspended turn. Each thread is an isolated unit of state; operations
// on one thread are serialized by its own mutex.
package thread

import (
	"sync"
	"time"

	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/schema"
	"github.com/draftworks/agentsmith/internal/transcript"
)

// Thread is the state record of one builder conversation.
type Thread struct {
	mu sync.Mutex
	// turnMu serializes whole builder turns on this thread. It is held
	// across model calls, so it must stay separate from mu.
	turnMu    sync.Mutex
	id        string
	validator *schema.Validator

	config ConfigState
	// lastValidated holds the normalized form of the most recent validated
	// config. Unlike config.validated it survives degradation to a partial,
	// so the mock-clearing comparison still sees the config the mock was
	// written against.
	lastValidated []byte
	mock          []transcript.Turn
	messages      []provider.Message
	todos         []Todo
	pending       *PendingInterrupt
	lastBuilt     []byte
	updatedAt     time.Time
}

// BeginTurn takes the thread's turn lock. Exactly one builder turn may be in
// flight per thread; a second caller blocks here until the first turn
// completes or suspends.
func (t *Thread) BeginTurn() { t.turnMu.Lock() }

// EndTurn releases the turn lock taken by BeginTurn.
func (t *Thread) EndTurn() { t.turnMu.Unlock() }

// ID returns the thread identity.
func (t *Thread) ID() string { return t.id }

// Write validates candidate and, on success, replaces the stored
// configuration wholesale, discarding previously accumulated partial data.
// On validation failure the stored state is untouched and the returned error
// is a *schema.ValidationError listing every violation; this is an expected
// condition, not a fault.
func (t *Thread) Write(candidate map[string]any) (*schema.AgentConfig, error) {
	cfg, err := t.validator.Validate(candidate)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.setValidated(cfg)
	return cfg, nil
}

// Update shallow-merges patch into the stored configuration: patch keys
// overwrite existing top-level keys, and nested values such as skills are
// replaced wholesale, never deep-merged. The merged result is validated; on
// success the thread holds a validated config, otherwise it degrades to
// holding the raw merged map as a partial. Update never fails; invalid
// intermediate states are expected while a config is being built up.
func (t *Thread) Update(patch map[string]any) ConfigState {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := t.config.AsMap()
	for k, v := range patch {
		merged[k] = v
	}

	cfg, err := t.validator.Validate(merged)
	if err != nil {
		t.config = ConfigState{kind: ConfigPartial, partial: merged}
		t.touch()
		return t.config
	}
	t.setValidated(cfg)
	return t.config
}

// Read returns the current configuration state without side effects.
func (t *Thread) Read() ConfigState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config
}

// setValidated installs a validated config. If it materially differs from
// the previously validated one, even across an intervening degradation to a
// partial, the mock conversation tied to the old config is cleared. Callers
// hold t.mu.
func (t *Thread) setValidated(cfg *schema.AgentConfig) {
	norm := cfg.Normalized()
	if t.lastValidated != nil && string(t.lastValidated) != string(norm) {
		t.mock = nil
	}
	t.lastValidated = norm
	t.config = ConfigState{kind: ConfigValidated, validated: cfg}
	t.touch()
}

// SetMockConversation replaces the mock conversation wholesale.
func (t *Thread) SetMockConversation(turns []transcript.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mock = turns
	t.touch()
}

// MockConversation returns the current mock conversation.
func (t *Thread) MockConversation() []transcript.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transcript.Turn, len(t.mock))
	copy(out, t.mock)
	return out
}

// AppendMessages appends to the builder transcript.
func (t *Thread) AppendMessages(msgs ...provider.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msgs...)
	t.touch()
}

// Messages returns a copy of the builder transcript.
func (t *Thread) Messages() []provider.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]provider.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// SetTodos replaces the builder's working plan.
func (t *Thread) SetTodos(todos []Todo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.todos = todos
	t.touch()
}

// Todos returns the builder's working plan.
func (t *Thread) Todos() []Todo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Todo, len(t.todos))
	copy(out, t.todos)
	return out
}

// Suspend records a pending interrupt with its continuation context. The
// thread is awaiting user input until TakePending is called.
func (t *Thread) Suspend(p *PendingInterrupt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = p
	t.touch()
}

// Pending returns the pending interrupt, if any.
func (t *Thread) Pending() *PendingInterrupt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// TakePending atomically clears and returns the pending interrupt so a
// resume cannot be processed twice.
func (t *Thread) TakePending() *PendingInterrupt {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.pending
	t.pending = nil
	if p != nil {
		t.touch()
	}
	return p
}

// NeedsBuild reports whether the thread holds a validated config that
// materially differs from the one last marked built. Callers gate agent
// instantiation on this so an unchanged config never discards an in-progress
// conversation with the previously built agent.
func (t *Thread) NeedsBuild() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.config.validated == nil {
		return false
	}
	return string(t.config.validated.Normalized()) != string(t.lastBuilt)
}

// MarkBuilt records the current validated config as built.
func (t *Thread) MarkBuilt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.config.validated != nil {
		t.lastBuilt = t.config.validated.Normalized()
	}
}

// Snapshot captures the full persisted layout of the thread.
func (t *Thread) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ThreadID:    t.id,
		ConfigValid: t.config.kind == ConfigValidated,
		Mock:        append([]transcript.Turn(nil), t.mock...),
		Messages:    append([]provider.Message(nil), t.messages...),
		Todos:       append([]Todo(nil), t.todos...),
		Pending:     t.pending,
		LastBuilt:   t.lastBuilt,
		UpdatedAt:   t.updatedAt,
	}
	if t.config.kind != ConfigEmpty {
		snap.Config = t.config.AsMap()
	}
	return snap
}

func (t *Thread) touch() {
	t.updatedAt = time.Now()
}
