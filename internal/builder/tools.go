package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/draftworks/agentsmith/internal/agent"
	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/schema"
	"github.com/draftworks/agentsmith/internal/thread"
	"github.com/draftworks/agentsmith/internal/transcript"
)

// Tool names the builder loop treats specially.
const (
	toolAskUser          = "ask_user_to_provide_info"
	toolDelegateResearch = "delegate_research"
)

var objectSchema = map[string]any{"type": "object"}

func stringArgSchema(name, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			name: map[string]any{"type": "string", "description": description},
		},
		"required": []string{name},
	}
}

// toolset builds the builder's tool registry bound to one thread. Handlers
// commit state into the thread and return result text for the model; schema
// violations come back as readable tool results, not errors, so the model can
// correct and retry within the same turn.
func (b *Builder) toolset(ctx context.Context, th *thread.Thread) *agent.ToolRegistry {
	reg := agent.NewToolRegistry()

	reg.Register(provider.FuncTool("write_agent_config",
		"Write the complete agent configuration. Validates against the schema; returns every violation on failure.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_config": map[string]any{"type": "object", "description": "Complete configuration with name, description, system_prompt and skills"},
			},
			"required": []string{"agent_config"},
		}),
		func(_ context.Context, args string) (string, error) {
			var payload struct {
				AgentConfig map[string]any `json:"agent_config"`
			}
			if err := json.Unmarshal([]byte(args), &payload); err != nil || payload.AgentConfig == nil {
				return "write_agent_config requires an agent_config object.", nil
			}
			if _, err := th.Write(payload.AgentConfig); err != nil {
				var verr *schema.ValidationError
				if errors.As(err, &verr) {
					return formatViolations(verr), nil
				}
				return "", err
			}
			b.publish(ctx, th.ID(), "config_updated", map[string]any{"valid": true})
			return "Configuration validated and saved.", nil
		})

	reg.Register(provider.FuncTool("update_agent_config",
		"Merge partial updates into the agent configuration. Top-level keys are replaced; the skills list is replaced wholesale.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"updates": map[string]any{"type": "object", "description": "Configuration fields to set"},
			},
			"required": []string{"updates"},
		}),
		func(_ context.Context, args string) (string, error) {
			var payload struct {
				Updates map[string]any `json:"updates"`
			}
			if err := json.Unmarshal([]byte(args), &payload); err != nil || payload.Updates == nil {
				return "update_agent_config requires an updates object.", nil
			}
			state := th.Update(payload.Updates)
			b.publish(ctx, th.ID(), "config_updated", map[string]any{
				"valid": state.Kind() == thread.ConfigValidated,
			})
			if state.Kind() == thread.ConfigValidated {
				return "Configuration updated; it is now complete and valid.", nil
			}
			return "Configuration updated; it is not yet complete. Use read_agent_config to inspect it.", nil
		})

	reg.Register(provider.FuncTool("read_agent_config",
		"Read the current agent configuration state.", objectSchema),
		func(context.Context, string) (string, error) {
			state := th.Read()
			if state.Kind() == thread.ConfigEmpty {
				return "No configuration yet.", nil
			}
			raw, err := json.MarshalIndent(state.AsMap(), "", "  ")
			if err != nil {
				return "", err
			}
			label := "partial (not yet valid)"
			if state.Kind() == thread.ConfigValidated {
				label = "validated"
			}
			return fmt.Sprintf("Current configuration (%s):\n%s", label, raw), nil
		})

	reg.Register(provider.FuncTool("update_mock_conversation",
		"Save the mock conversation. Pass markdown with **User:**/**Agent:** speaker markers.",
		stringArgSchema("conversation", "Markdown-formatted conversation text")),
		func(_ context.Context, args string) (string, error) {
			var payload struct {
				Conversation string `json:"conversation"`
			}
			if err := json.Unmarshal([]byte(args), &payload); err != nil || payload.Conversation == "" {
				return "update_mock_conversation requires a conversation string.", nil
			}
			turns := transcript.Parse(payload.Conversation)
			if len(turns) == 0 {
				return "No turns recognized. Mark each message with **User:** or **Agent:**.", nil
			}
			th.SetMockConversation(turns)
			return fmt.Sprintf("Mock conversation saved (%d turns).", len(turns)), nil
		})

	reg.Register(provider.FuncTool("write_todos",
		"Replace the working todo list for this build.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"todos": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"content": map[string]any{"type": "string"},
							"status":  map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
						},
						"required": []string{"content", "status"},
					},
				},
			},
			"required": []string{"todos"},
		}),
		func(_ context.Context, args string) (string, error) {
			var payload struct {
				Todos []thread.Todo `json:"todos"`
			}
			if err := json.Unmarshal([]byte(args), &payload); err != nil {
				return "write_todos requires a todos array.", nil
			}
			th.SetTodos(payload.Todos)
			return fmt.Sprintf("Todo list updated (%d items).", len(payload.Todos)), nil
		})

	reg.Register(provider.FuncTool(toolDelegateResearch,
		"Delegate a research task to the web search sub-agent. Returns summarized findings with sources.",
		stringArgSchema("query", "What to research")),
		func(ctx context.Context, args string) (string, error) {
			return b.runResearch(ctx, agent.QueryArg(args))
		})

	// ask_user_to_provide_info has no handler: the builder loop intercepts it
	// and suspends the turn instead of executing anything.
	reg.Register(provider.FuncTool(toolAskUser,
		"Ask the user to provide missing information. Pauses the build until the user answers.",
		stringArgSchema("confirm_message", "Message to ask the user")),
		func(context.Context, string) (string, error) {
			return "", errors.New("ask_user_to_provide_info must be intercepted by the builder loop")
		})

	return reg
}

// formatViolations renders every validation violation as one tool result.
func formatViolations(verr *schema.ValidationError) string {
	var b strings.Builder
	b.WriteString("Configuration is invalid:\n")
	for _, f := range verr.Fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Path, f.Reason)
	}
	b.WriteString("Fix every field above and call write_agent_config again.")
	return b.String()
}

// confirmMessage extracts the question from ask_user_to_provide_info args.
func confirmMessage(args string) string {
	var payload struct {
		ConfirmMessage string `json:"confirm_message"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err == nil && payload.ConfirmMessage != "" {
		return payload.ConfirmMessage
	}
	return "Could you provide more details?"
}
