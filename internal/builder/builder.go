// Package builder runs the conversational agent-building loop: it drives the
// configured LLM with the config-manager tool set, commits configuration
// state into the thread after each directive, suspends the turn when the
// model needs to ask the user something, and instantiates the runnable agent
// whenever the validated configuration materially changes.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/agent"
	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/research"
	"github.com/draftworks/agentsmith/internal/thread"
)

const (
	// maxBuilderRounds bounds tool rounds in one builder turn, resumes
	// included.
	maxBuilderRounds = 12
	// maxResearchRounds bounds the delegated research sub-loop.
	maxResearchRounds = 5

	// Router keys for the builder's two model roles.
	routeBuilder  = "builder"
	routeResearch = "research"
	routeAgent    = "agent"
)

// ErrAwaitingInput is returned when a turn arrives while the thread is
// suspended on an unanswered interrupt; the caller should resume instead.
var ErrAwaitingInput = errors.New("thread is awaiting user input, resume it")

// ErrNoPending is returned by Resume when nothing is suspended.
var ErrNoPending = errors.New("no pending interrupt to resume")

// Events receives thread lifecycle events. The bus satisfies this; a nil
// publisher disables eventing.
type Events interface {
	Publish(ctx context.Context, threadID, event string, payload map[string]any) error
}

// Result is the outcome of one builder turn: either a reply, or an interrupt
// asking the user for input.
type Result struct {
	Reply     string            `json:"reply,omitempty"`
	Interrupt *thread.Interrupt `json:"interrupt,omitempty"`
}

// Builder coordinates builder turns across threads and holds the runnable
// agents instantiated from their validated configurations.
type Builder struct {
	router   *provider.Router
	threads  *thread.Store
	research *research.Client
	model    string
	events   Events
	logger   *zap.Logger

	mu     sync.RWMutex
	agents map[string]*agent.Runnable
}

// New creates a builder. research may be nil to disable delegation.
func New(router *provider.Router, threads *thread.Store, researchClient *research.Client, model string, logger *zap.Logger) *Builder {
	return &Builder{
		router:   router,
		threads:  threads,
		research: researchClient,
		model:    model,
		logger:   logger,
		agents:   make(map[string]*agent.Runnable),
	}
}

// SetEvents attaches an event publisher.
func (b *Builder) SetEvents(ev Events) { b.events = ev }

// HandleMessage runs one builder turn for a user message. If the model asks
// the user for information mid-turn, the turn suspends and the interrupt is
// returned; committed tool effects up to that point are kept. Turns on the
// same thread are serialized: a second message blocks until the in-flight
// turn completes or suspends, and then fails with ErrAwaitingInput if the
// turn suspended.
func (b *Builder) HandleMessage(ctx context.Context, th *thread.Thread, userMsg string) (*Result, error) {
	th.BeginTurn()
	defer th.EndTurn()

	if th.Pending() != nil {
		return nil, ErrAwaitingInput
	}

	conv := append(th.Messages(), provider.Message{Role: "user", Content: userMsg})
	return b.runTurn(ctx, th, conv, len(conv)-1)
}

// Resume continues a suspended turn, feeding answer as the result of the
// pending ask_user_to_provide_info call. Resuming is idempotent-safe: the
// pending interrupt is consumed atomically, and a second resume fails with
// ErrNoPending.
func (b *Builder) Resume(ctx context.Context, th *thread.Thread, answer string) (*Result, error) {
	th.BeginTurn()
	defer th.EndTurn()

	p := th.TakePending()
	if p == nil {
		return nil, ErrNoPending
	}

	conv := append(p.Messages, provider.Message{
		Role:       "tool",
		Content:    answer,
		ToolCallID: p.ToolCallID,
	})
	return b.runTurn(ctx, th, conv, p.Committed)
}

// runTurn drives the model over conv until it replies without tool calls,
// suspends on ask_user_to_provide_info, or exhausts the round budget. conv
// excludes the system prompt, which is prepended per request. committed is
// the length of conv's prefix already stored in the thread transcript;
// everything past it is appended on completion. The caller holds the
// thread's turn lock.
func (b *Builder) runTurn(ctx context.Context, th *thread.Thread, conv []provider.Message, committed int) (*Result, error) {
	tools := b.toolset(ctx, th)

	for round := 0; round < maxBuilderRounds; round++ {
		req := &provider.ChatRequest{
			Model:      b.model,
			Messages:   append([]provider.Message{{Role: "system", Content: builderSystemPrompt()}}, conv...),
			MaxTokens:  4096,
			Tools:      tools.Definitions(),
			ToolChoice: "auto",
		}
		resp, err := b.router.Route(ctx, routeBuilder, req)
		if err != nil {
			return nil, fmt.Errorf("builder turn: %w", err)
		}

		if len(resp.ToolCalls) == 0 || resp.FinishReason != "tool_calls" {
			conv = append(conv, provider.Message{Role: "assistant", Content: resp.Content})
			th.AppendMessages(conv[committed:]...)
			b.maybeRebuild(ctx, th)
			b.publish(ctx, th.ID(), "turn_completed", map[string]any{"reply": resp.Content})
			return &Result{Reply: resp.Content}, nil
		}

		conv = append(conv, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for i, tc := range resp.ToolCalls {
			if tc.Function.Name == toolAskUser {
				// Other calls in the same batch that have not run yet get a
				// deferral result so the transcript stays well formed.
				for _, rest := range resp.ToolCalls[i+1:] {
					conv = append(conv, provider.Message{
						Role:       "tool",
						Content:    "Deferred: waiting for user input.",
						ToolCallID: rest.ID,
					})
				}
				intr := thread.Interrupt{
					Tool:           toolAskUser,
					ConfirmMessage: confirmMessage(tc.Function.Arguments),
				}
				th.Suspend(&thread.PendingInterrupt{
					Interrupt:  intr,
					ToolCallID: tc.ID,
					Messages:   conv,
					Committed:  committed,
				})
				b.publish(ctx, th.ID(), "interrupt", map[string]any{
					"confirm_message": intr.ConfirmMessage,
				})
				b.logger.Info("builder turn suspended",
					zap.String("thread", th.ID()),
					zap.String("question", intr.ConfirmMessage))
				return &Result{Interrupt: &intr}, nil
			}

			result, err := tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				result = fmt.Sprintf("Tool %s failed: %v", tc.Function.Name, err)
			}
			conv = append(conv, provider.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	// Round budget exhausted with the model still calling tools. Commit the
	// transcript and surface what we have.
	th.AppendMessages(conv[committed:]...)
	b.maybeRebuild(ctx, th)
	b.logger.Warn("builder turn hit round limit", zap.String("thread", th.ID()))
	return &Result{Reply: "I could not finish this step; please tell me how to proceed."}, nil
}

// runResearch executes the delegated research sub-loop with its own isolated
// context and tool set.
func (b *Builder) runResearch(ctx context.Context, query string) (string, error) {
	if b.research == nil {
		return "Research is not configured.", nil
	}

	tools := agent.NewToolRegistry()
	tools.Register(provider.FuncTool("web_search",
		"Search the web for information on a query.", provider.QuerySchema),
		func(ctx context.Context, args string) (string, error) {
			return b.research.Search(ctx, agent.QueryArg(args), 3), nil
		})
	tools.Register(provider.FuncTool("fetch_webpage",
		"Fetch readable text content from a URL.",
		stringArgSchema("url", "URL to fetch")),
		func(ctx context.Context, args string) (string, error) {
			var payload struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal([]byte(args), &payload); err != nil || payload.URL == "" {
				return "fetch_webpage requires a url.", nil
			}
			return b.research.FetchPage(ctx, payload.URL), nil
		})
	tools.Register(provider.FuncTool("think",
		"Record a reflection on findings so far and what to do next.",
		stringArgSchema("reflection", "Your reflection")),
		func(_ context.Context, args string) (string, error) {
			return "Reflection recorded: " + agent.QueryArg(args), nil
		})

	conv := []provider.Message{
		{Role: "system", Content: researchInstructions},
		{Role: "user", Content: query},
	}
	req := &provider.ChatRequest{
		Model:      b.model,
		Messages:   conv,
		MaxTokens:  4096,
		Tools:      tools.Definitions(),
		ToolChoice: "auto",
	}

	var resp *provider.ChatResponse
	for round := 0; round < maxResearchRounds; round++ {
		var err error
		resp, err = b.router.Route(ctx, routeResearch, req)
		if err != nil {
			return fmt.Sprintf("Research failed: %v", err), nil
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
			result, err := tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				result = fmt.Sprintf("Tool %s failed: %v", tc.Function.Name, err)
			}
			req.Messages = append(req.Messages, provider.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}
	return resp.Content, nil
}

// maybeRebuild instantiates the runnable agent when the validated config has
// materially changed since the last build. Build failure keeps the previous
// agent; an unchanged config keeps both the agent and its conversations.
func (b *Builder) maybeRebuild(ctx context.Context, th *thread.Thread) {
	if !th.NeedsBuild() {
		return
	}
	cfg := th.Read().Validated()

	r, err := agent.BuildRunnable(cfg, b.router, b.model, routeAgent, b.logger)
	if err != nil {
		b.logger.Warn("agent instantiation failed, previous agent kept",
			zap.String("thread", th.ID()), zap.Error(err))
		return
	}

	b.mu.Lock()
	b.agents[th.ID()] = r
	b.mu.Unlock()
	th.MarkBuilt()
	b.publish(ctx, th.ID(), "agent_built", map[string]any{"name": cfg.Name})
	b.logger.Info("agent rebuilt", zap.String("thread", th.ID()), zap.String("name", cfg.Name))
}

// Agent returns the built runnable agent for a thread, if any.
func (b *Builder) Agent(threadID string) (*agent.Runnable, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.agents[threadID]
	return r, ok
}

// DropAgent discards a thread's built agent, e.g. on restart.
func (b *Builder) DropAgent(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, threadID)
}

func (b *Builder) publish(ctx context.Context, threadID, event string, payload map[string]any) {
	if b.events == nil {
		return
	}
	if err := b.events.Publish(ctx, threadID, event, payload); err != nil {
		b.logger.Warn("event publish failed",
			zap.String("thread", threadID), zap.String("event", event), zap.Error(err))
	}
}
