package builder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/thread"
)

// scriptedProvider replays a fixed response sequence and records requests.
type scriptedProvider struct {
	responses []*provider.ChatResponse
	requests  []*provider.ChatRequest
	calls     int
}

func (s *scriptedProvider) ID() string   { return "scripted" }
func (s *scriptedProvider) Name() string { return "Scripted" }

func (s *scriptedProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if s.calls >= len(s.responses) {
		return &provider.ChatResponse{Content: "done", FinishReason: "stop"}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedProvider) ChatStream(ctx context.Context, req *provider.ChatRequest) (<-chan *provider.StreamChunk, error) {
	ch := make(chan *provider.StreamChunk)
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) HealthCheck(context.Context) error { return nil }

type recordedEvent struct {
	ThreadID string
	Event    string
	Payload  map[string]any
}

type eventRecorder struct {
	events []recordedEvent
}

func (r *eventRecorder) Publish(_ context.Context, threadID, event string, payload map[string]any) error {
	r.events = append(r.events, recordedEvent{threadID, event, payload})
	return nil
}

func newTestBuilder(t *testing.T, p provider.Provider) (*Builder, *thread.Store) {
	t.Helper()
	router := provider.NewRouter(zap.NewNop())
	router.Register(p)
	threads := thread.NewStore(nil, zap.NewNop())
	return New(router, threads, nil, "test-model", zap.NewNop()), threads
}

func validConfigMap() map[string]any {
	return map[string]any{
		"name":          "Hotel Agent",
		"description":   "Books hotel rooms",
		"system_prompt": "You are a booking assistant.",
		"skills": []any{
			map[string]any{
				"name":        "Booking",
				"when_to_use": "When the user wants to reserve a hotel room",
				"prompt":      "Help the user book a room.",
				"tools":       []any{map[string]any{"name": "send_email", "config": map[string]any{}}},
			},
		},
	}
}

func writeConfigCall(id string, cfg map[string]any) provider.ToolCall {
	args, _ := json.Marshal(map[string]any{"agent_config": cfg})
	return provider.ToolCall{
		ID: id, Type: "function",
		Function: provider.ToolCallFunction{Name: "write_agent_config", Arguments: string(args)},
	}
}

func call(id, name, args string) provider.ToolCall {
	return provider.ToolCall{
		ID: id, Type: "function",
		Function: provider.ToolCallFunction{Name: name, Arguments: args},
	}
}

func toolCallsResp(calls ...provider.ToolCall) *provider.ChatResponse {
	return &provider.ChatResponse{FinishReason: "tool_calls", ToolCalls: calls}
}

func reply(text string) *provider.ChatResponse {
	return &provider.ChatResponse{Content: text, FinishReason: "stop"}
}

func TestPlainReplyCommitsTranscript(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		reply("What should the agent do?"),
	}}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	res, err := b.HandleMessage(context.Background(), th, "I want an agent")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Reply != "What should the agent do?" || res.Interrupt != nil {
		t.Errorf("result = %+v", res)
	}

	msgs := th.Messages()
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("transcript = %+v", msgs)
	}
}

func TestWriteConfigCommitsAndBuilds(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallsResp(writeConfigCall("c1", validConfigMap())),
		reply("Your agent is ready."),
	}}
	b, threads := newTestBuilder(t, p)
	rec := &eventRecorder{}
	b.SetEvents(rec)
	th := threads.New()

	res, err := b.HandleMessage(context.Background(), th, "Build a hotel agent")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Reply != "Your agent is ready." {
		t.Errorf("reply = %q", res.Reply)
	}

	if th.Read().Kind() != thread.ConfigValidated {
		t.Fatal("config not validated")
	}
	if th.NeedsBuild() {
		t.Error("thread still flagged for rebuild after build")
	}
	if _, ok := b.Agent(th.ID()); !ok {
		t.Error("no runnable agent after validated config")
	}

	// The tool result fed back to the model confirms the save.
	toolMsg := p.requests[1].Messages[len(p.requests[1].Messages)-1]
	if toolMsg.Role != "tool" || toolMsg.Content != "Configuration validated and saved." {
		t.Errorf("tool result = %+v", toolMsg)
	}

	var names []string
	for _, e := range rec.events {
		names = append(names, e.Event)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"config_updated", "agent_built", "turn_completed"} {
		if !strings.Contains(joined, want) {
			t.Errorf("events = %v, missing %s", names, want)
		}
	}
}

func TestInvalidWriteReturnsEveryViolation(t *testing.T) {
	bad := validConfigMap()
	bad["name"] = ""
	bad["description"] = ""
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallsResp(writeConfigCall("c1", bad)),
		reply("Let me fix that."),
	}}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	if _, err := b.HandleMessage(context.Background(), th, "go"); err != nil {
		t.Fatalf("turn: %v", err)
	}

	toolMsg := p.requests[1].Messages[len(p.requests[1].Messages)-1]
	if !strings.Contains(toolMsg.Content, "Configuration is invalid") {
		t.Fatalf("tool result = %q", toolMsg.Content)
	}
	if !strings.Contains(toolMsg.Content, "name") || !strings.Contains(toolMsg.Content, "description") {
		t.Errorf("violations missing fields: %q", toolMsg.Content)
	}
	if th.Read().Kind() != thread.ConfigEmpty {
		t.Error("failed write mutated thread state")
	}
}

func TestInterruptSuspendsAndResumes(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallsResp(call("c1", toolAskUser, `{"confirm_message":"Which city?"}`)),
		reply("Got it, building a Tokyo agent."),
	}}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	res, err := b.HandleMessage(context.Background(), th, "Build a travel agent")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Interrupt == nil || res.Interrupt.ConfirmMessage != "Which city?" {
		t.Fatalf("result = %+v", res)
	}
	if th.Pending() == nil {
		t.Fatal("thread not suspended")
	}

	// A fresh message while suspended is rejected.
	if _, err := b.HandleMessage(context.Background(), th, "hello?"); !errors.Is(err, ErrAwaitingInput) {
		t.Fatalf("err = %v, want ErrAwaitingInput", err)
	}

	res, err = b.Resume(context.Background(), th, "Tokyo")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Reply != "Got it, building a Tokyo agent." {
		t.Errorf("reply = %q", res.Reply)
	}

	// The answer was delivered as the pending tool call's result.
	resumeReq := p.requests[1]
	last := resumeReq.Messages[len(resumeReq.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" || last.Content != "Tokyo" {
		t.Errorf("resume tool message = %+v", last)
	}

	if th.Pending() != nil {
		t.Error("pending interrupt survived resume")
	}
	if _, err := b.Resume(context.Background(), th, "again"); !errors.Is(err, ErrNoPending) {
		t.Errorf("second resume err = %v, want ErrNoPending", err)
	}
}

// gatedProvider blocks inside its first model call until released, letting a
// test start a second turn while the first is mid-flight.
type gatedProvider struct {
	scriptedProvider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProvider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.scriptedProvider.Chat(ctx, req)
}

func TestConcurrentTurnsSerializePerThread(t *testing.T) {
	p := &gatedProvider{
		scriptedProvider: scriptedProvider{responses: []*provider.ChatResponse{
			toolCallsResp(call("c1", toolAskUser, `{"confirm_message":"Which city?"}`)),
			reply("Got it, building a Tokyo agent."),
		}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	resA := make(chan *Result, 1)
	errA := make(chan error, 1)
	go func() {
		res, err := b.HandleMessage(context.Background(), th, "Build a travel agent")
		resA <- res
		errA <- err
	}()
	<-p.entered

	// Second turn on the same thread while the first is inside its model
	// call. It must block on the turn lock, not interleave.
	errB := make(chan error, 1)
	go func() {
		_, err := b.HandleMessage(context.Background(), th, "are you there?")
		errB <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if got := len(th.Messages()); got != 0 {
		t.Fatalf("second turn committed %d messages while the first was in flight", got)
	}

	close(p.release)

	if err := <-errA; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	res := <-resA
	if res.Interrupt == nil || res.Interrupt.ConfirmMessage != "Which city?" {
		t.Fatalf("first turn result = %+v", res)
	}

	// Once the first turn suspended, the queued turn observes the pending
	// interrupt instead of racing past the check.
	if err := <-errB; !errors.Is(err, ErrAwaitingInput) {
		t.Fatalf("second turn err = %v, want ErrAwaitingInput", err)
	}

	out, err := b.Resume(context.Background(), th, "Tokyo")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if out.Reply != "Got it, building a Tokyo agent." {
		t.Errorf("reply = %q", out.Reply)
	}

	// user, assistant tool call, tool answer, assistant reply.
	if msgs := th.Messages(); len(msgs) != 4 {
		t.Errorf("transcript has %d messages, want 4: %+v", len(msgs), msgs)
	}
}

func TestMockConversationToolCommitsTurns(t *testing.T) {
	args, _ := json.Marshal(map[string]any{
		"conversation": "**User:** Hi\n**Agent:** Hello! How can I help?",
	})
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallsResp(call("c1", "update_mock_conversation", string(args))),
		reply("Mock conversation added."),
	}}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	if _, err := b.HandleMessage(context.Background(), th, "add a mock"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	turns := th.MockConversation()
	if len(turns) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0].Text != "Hi" || turns[1].Text != "Hello! How can I help?" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestUnchangedConfigKeepsExistingAgent(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallsResp(writeConfigCall("c1", validConfigMap())),
		reply("Built."),
		toolCallsResp(writeConfigCall("c2", validConfigMap())),
		reply("Still the same."),
	}}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	if _, err := b.HandleMessage(context.Background(), th, "build"); err != nil {
		t.Fatal(err)
	}
	first, _ := b.Agent(th.ID())

	if _, err := b.HandleMessage(context.Background(), th, "write it again"); err != nil {
		t.Fatal(err)
	}
	second, _ := b.Agent(th.ID())

	if first != second {
		t.Error("materially unchanged config rebuilt the agent")
	}
}

func TestTodosToolCommitsPlan(t *testing.T) {
	args, _ := json.Marshal(map[string]any{
		"todos": []map[string]string{
			{"content": "collect requirements", "status": "completed"},
			{"content": "write config", "status": "in_progress"},
		},
	})
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallsResp(call("c1", "write_todos", string(args))),
		reply("Planned."),
	}}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	if _, err := b.HandleMessage(context.Background(), th, "plan it"); err != nil {
		t.Fatal(err)
	}
	todos := th.Todos()
	if len(todos) != 2 || todos[1].Status != "in_progress" {
		t.Errorf("todos = %+v", todos)
	}
}

func TestRoundLimitTerminates(t *testing.T) {
	loop := toolCallsResp(call("c", "read_agent_config", "{}"))
	responses := make([]*provider.ChatResponse, maxBuilderRounds+2)
	for i := range responses {
		responses[i] = loop
	}
	p := &scriptedProvider{responses: responses}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	res, err := b.HandleMessage(context.Background(), th, "loop forever")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Reply == "" {
		t.Error("round-limited turn produced no reply")
	}
	if p.calls > maxBuilderRounds {
		t.Errorf("provider called %d times, budget %d", p.calls, maxBuilderRounds)
	}
}

func TestDropAgentOnRestart(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallsResp(writeConfigCall("c1", validConfigMap())),
		reply("Built."),
	}}
	b, threads := newTestBuilder(t, p)
	th := threads.New()

	if _, err := b.HandleMessage(context.Background(), th, "build"); err != nil {
		t.Fatal(err)
	}
	b.DropAgent(th.ID())
	if _, ok := b.Agent(th.ID()); ok {
		t.Error("agent survived drop")
	}
}
