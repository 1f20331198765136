// Package agent instantiates runnable agents from validated configurations
// using the agent-as-a-tool pattern: every skill becomes its own sub-agent,
// wrapped as a single callable action the entrance agent can invoke.
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/schema"
)

// maxToolRounds bounds how many tool rounds one invocation may take.
const maxToolRounds = 5

// Runnable is an instantiated entrance agent the user can converse with.
type Runnable struct {
	name     string
	system   string
	model    string
	routeKey string
	router   *provider.Router
	tools    *ToolRegistry
	memory   *SessionMemory
	logger   *zap.Logger
}

// skillAgent is the inner sub-agent built from one skill. It is invoked only
// through the entrance agent's wrapped action.
type skillAgent struct {
	prompt   string
	model    string
	routeKey string
	router   *provider.Router
	tools    *ToolRegistry
	logger   *zap.Logger
}

// BuildRunnable constructs a runnable agent from a validated configuration.
// The config must already have passed schema validation; this is a caller
// precondition and is not re-checked field by field. Construction either
// yields a fully wired agent or fails atomically with no partial result;
// on failure any previously built agent remains usable.
func BuildRunnable(cfg *schema.AgentConfig, router *provider.Router, model, routeKey string, logger *zap.Logger) (*Runnable, error) {
	if !router.Available() {
		return nil, fmt.Errorf("build agent: no provider registered")
	}
	if len(cfg.Skills) != 1 {
		return nil, fmt.Errorf("build agent: config has %d skills, want 1", len(cfg.Skills))
	}
	skill := cfg.Skills[0]

	// Mock actions for the skill's tool bindings. Tool execution is simulated
	// in this phase of the product: every action returns a canned
	// acknowledgement instead of performing real work.
	mockTools := NewToolRegistry()
	for _, binding := range skill.Tools {
		display := binding.Name
		if entry, ok := schema.CatalogEntryByName(binding.Name); ok {
			display = entry.Name
		}
		def := provider.FuncTool(
			SanitizeToolName(binding.Name),
			fmt.Sprintf("Tool: %s. Config: %v", binding.Name, binding.Config),
			provider.QuerySchema,
		)
		mockTools.Register(def, mockHandler(display))
		logger.Debug("registered mock tool",
			zap.String("tool", def.Function.Name),
			zap.String("agent", cfg.Name))
	}

	inner := &skillAgent{
		prompt:   skill.Prompt,
		model:    model,
		routeKey: routeKey,
		router:   router,
		tools:    mockTools,
		logger:   logger,
	}

	// The skill agent itself becomes the entrance agent's only action.
	entranceTools := NewToolRegistry()
	entranceTools.Register(
		provider.FuncTool(
			SanitizeToolName(skill.Name),
			"Use this tool when: "+skill.WhenToUse,
			provider.QuerySchema,
		),
		func(ctx context.Context, args string) (string, error) {
			return inner.run(ctx, QueryArg(args))
		},
	)

	r := &Runnable{
		name:     cfg.Name,
		system:   cfg.SystemPrompt,
		model:    model,
		routeKey: routeKey,
		router:   router,
		tools:    entranceTools,
		memory:   NewSessionMemory(0),
		logger:   logger,
	}
	logger.Info("agent instantiated",
		zap.String("name", cfg.Name),
		zap.String("skill", skill.Name),
		zap.Int("mock_tools", mockTools.Len()))
	return r, nil
}

// Name returns the configured agent name.
func (r *Runnable) Name() string { return r.name }

// Invoke runs one conversational turn for the given session. History for the
// session is carried across calls.
func (r *Runnable) Invoke(ctx context.Context, sessionID, userMsg string) (string, error) {
	history := r.memory.History(sessionID)
	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: "system", Content: r.system})
	msgs = append(msgs, history...)
	msgs = append(msgs, provider.Message{Role: "user", Content: userMsg})

	content, err := runToolLoop(ctx, r.router, r.routeKey, r.model, msgs, r.tools, r.logger)
	if err != nil {
		return "", err
	}

	r.memory.Append(sessionID,
		provider.Message{Role: "user", Content: userMsg},
		provider.Message{Role: "assistant", Content: content},
	)
	return content, nil
}

// InvokeStream is the streaming variant of Invoke. Tool rounds run eagerly;
// the final answer is delivered over the returned channel.
func (r *Runnable) InvokeStream(ctx context.Context, sessionID, userMsg string) (<-chan *provider.StreamChunk, error) {
	content, err := r.Invoke(ctx, sessionID, userMsg)
	if err != nil {
		return nil, err
	}
	ch := make(chan *provider.StreamChunk, 2)
	ch <- &provider.StreamChunk{Content: content}
	ch <- &provider.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// ClearSession drops one session's conversational memory.
func (r *Runnable) ClearSession(sessionID string) {
	r.memory.Clear(sessionID)
}

// run executes the skill agent for one delegated query.
func (s *skillAgent) run(ctx context.Context, query string) (string, error) {
	msgs := []provider.Message{
		{Role: "system", Content: s.prompt},
		{Role: "user", Content: query},
	}
	return runToolLoop(ctx, s.router, s.routeKey, s.model, msgs, s.tools, s.logger)
}

// runToolLoop drives the model until it stops calling tools or the round
// budget runs out, executing each requested tool and feeding results back.
func runToolLoop(ctx context.Context, router *provider.Router, routeKey, model string, msgs []provider.Message, tools *ToolRegistry, logger *zap.Logger) (string, error) {
	req := &provider.ChatRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: 4096,
	}
	if tools.Len() > 0 {
		req.Tools = tools.Definitions()
		req.ToolChoice = "auto"
	}

	var resp *provider.ChatResponse
	for round := 0; round < maxToolRounds; round++ {
		var err error
		resp, err = router.Route(ctx, routeKey, req)
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 || resp.FinishReason != "tool_calls" {
			break
		}

		req.Messages = append(req.Messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result, toolErr := tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			if toolErr != nil {
				result = fmt.Sprintf(`{"error":%q}`, toolErr.Error())
			}
			logger.Debug("tool executed",
				zap.String("tool", tc.Function.Name),
				zap.Int("round", round+1))
			req.Messages = append(req.Messages, provider.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}
	return resp.Content, nil
}

// mockHandler builds the canned acknowledgement handler for one mock tool.
func mockHandler(displayName string) Handler {
	return func(_ context.Context, args string) (string, error) {
		return fmt.Sprintf("[Mock Response from %s] Successfully processed: %s",
			displayName, QueryArg(args)), nil
	}
}
