package thread

import (
	"encoding/json"
	"time"

	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/schema"
	"github.com/draftworks/agentsmith/internal/transcript"
)

// ConfigKind tags the configuration variant a thread currently holds.
type ConfigKind int

const (
	// ConfigEmpty means no configuration data has been written yet.
	ConfigEmpty ConfigKind = iota
	// ConfigPartial means the thread holds an unvalidated merge-in-progress map.
	ConfigPartial
	// ConfigValidated means the thread holds a schema-valid AgentConfig.
	ConfigValidated
)

// ConfigState is the tagged union of the two configuration shapes a thread
// can hold. Consumers must switch on Kind rather than assume a shape.
type ConfigState struct {
	kind      ConfigKind
	partial   map[string]any
	validated *schema.AgentConfig
}

// String names the variant for logs and API responses.
func (k ConfigKind) String() string {
	switch k {
	case ConfigPartial:
		return "partial"
	case ConfigValidated:
		return "validated"
	default:
		return "empty"
	}
}

// Kind returns the variant tag.
func (cs ConfigState) Kind() ConfigKind { return cs.kind }

// Partial returns the merge-in-progress map, or nil if the state is not
// partial. The map is a shallow copy; mutating it does not touch thread
// state.
func (cs ConfigState) Partial() map[string]any {
	if cs.partial == nil {
		return nil
	}
	out := make(map[string]any, len(cs.partial))
	for k, v := range cs.partial {
		out[k] = v
	}
	return out
}

// Validated returns the schema-valid config, or nil if the state is not
// validated.
func (cs ConfigState) Validated() *schema.AgentConfig { return cs.validated }

// AsMap returns the state as a raw map usable as a merge base. Empty state
// yields an empty map.
func (cs ConfigState) AsMap() map[string]any {
	switch cs.kind {
	case ConfigValidated:
		return cs.validated.AsMap()
	case ConfigPartial:
		out := make(map[string]any, len(cs.partial))
		for k, v := range cs.partial {
			out[k] = v
		}
		return out
	default:
		return map[string]any{}
	}
}

// MarshalJSON renders the underlying configuration data regardless of variant.
func (cs ConfigState) MarshalJSON() ([]byte, error) {
	switch cs.kind {
	case ConfigValidated:
		return json.Marshal(cs.validated)
	case ConfigPartial:
		return json.Marshal(cs.partial)
	default:
		return []byte("null"), nil
	}
}

// Todo is one item of the builder's working plan.
type Todo struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending|in_progress|completed
}

// Interrupt is a structured pause request surfaced mid-turn to ask the user
// for missing information.
type Interrupt struct {
	Tool           string `json:"tool"`
	ConfirmMessage string `json:"confirm_message"`
}

// PendingInterrupt persists the continuation context of a suspended turn:
// the interrupt payload, the tool call awaiting an answer, the turn's
// conversation so far, and how many of those messages were already in the
// thread transcript when the turn began. Resuming replays none of them.
type PendingInterrupt struct {
	Interrupt  Interrupt          `json:"interrupt"`
	ToolCallID string             `json:"tool_call_id"`
	Messages   []provider.Message `json:"messages"`
	Committed  int                `json:"committed"`
}

// Snapshot is the persisted layout of one thread's state.
type Snapshot struct {
	ThreadID    string             `json:"thread_id"`
	Config      map[string]any     `json:"agent_config,omitempty"`
	ConfigValid bool               `json:"config_valid"`
	Mock        []transcript.Turn  `json:"mock_conversations,omitempty"`
	Messages    []provider.Message `json:"messages,omitempty"`
	Todos       []Todo             `json:"todos,omitempty"`
	Pending     *PendingInterrupt  `json:"pending,omitempty"`
	LastBuilt   json.RawMessage    `json:"last_built,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
