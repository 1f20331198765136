package agent

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/schema"
)

// scriptedProvider replays a fixed sequence of responses and records every
// request it receives.
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
	resp, err := s.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan *provider.StreamChunk, 2)
	ch <- &provider.StreamChunk{Content: resp.Content}
	ch <- &provider.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) HealthCheck(context.Context) error { return nil }

func testRouter(t *testing.T, p provider.Provider) *provider.Router {
	t.Helper()
	r := provider.NewRouter(zap.NewNop())
	r.Register(p)
	return r
}

func bookingConfig() *schema.AgentConfig {
	return &schema.AgentConfig{
		Name:         "Hotel Agent",
		Description:  "Books hotel rooms",
		SystemPrompt: "You are a hotel booking assistant.",
		Skills: []schema.Skill{{
			Name:      "Room Booking",
			WhenToUse: "When the user wants to reserve a hotel room",
			Prompt:    "Handle the room booking end to end.",
			Tools: []schema.ToolBinding{
				{Name: "send_email", Config: map[string]any{}},
			},
		}},
	}
}

func toolCall(id, name, args string) provider.ToolCall {
	return provider.ToolCall{
		ID:   id,
		Type: "function",
		Function: provider.ToolCallFunction{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestBuildRunnableRequiresProvider(t *testing.T) {
	r := provider.NewRouter(zap.NewNop())
	if _, err := BuildRunnable(bookingConfig(), r, "m", "agent", zap.NewNop()); err == nil {
		t.Fatal("build succeeded with no provider registered")
	}
}

func TestBuildRunnableRequiresOneSkill(t *testing.T) {
	cfg := bookingConfig()
	cfg.Skills = nil
	router := testRouter(t, &scriptedProvider{})
	if _, err := BuildRunnable(cfg, router, "m", "agent", zap.NewNop()); err == nil {
		t.Fatal("build succeeded with zero skills")
	}
}

func TestInvokePlainAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "Welcome to the hotel desk.", FinishReason: "stop"},
	}}
	r, err := BuildRunnable(bookingConfig(), testRouter(t, p), "m", "agent", zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out, err := r.Invoke(context.Background(), "s1", "Hello")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "Welcome to the hotel desk." {
		t.Errorf("out = %q", out)
	}

	// System prompt and user message present; skill exposed as a tool.
	req := p.requests[0]
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "You are a hotel booking assistant." {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "room_booking" {
		t.Errorf("tools = %+v", req.Tools)
	}
	if !strings.HasPrefix(req.Tools[0].Function.Description, "Use this tool when: ") {
		t.Errorf("tool description = %q", req.Tools[0].Function.Description)
	}
}

func TestInvokeDelegatesToSkillAgent(t *testing.T) {
	// Entrance calls the skill tool; the skill agent calls the mock
	// send_email tool and then answers; the entrance wraps it up.
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls:    []provider.ToolCall{toolCall("c1", "room_booking", `{"query":"book a suite"}`)},
		},
		{
			FinishReason: "tool_calls",
			ToolCalls:    []provider.ToolCall{toolCall("c2", "send_email", `{"query":"confirmation"}`)},
		},
		{Content: "Email sent, suite booked.", FinishReason: "stop"},
		{Content: "Your suite is booked and confirmed by email.", FinishReason: "stop"},
	}}
	r, err := BuildRunnable(bookingConfig(), testRouter(t, p), "m", "agent", zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out, err := r.Invoke(context.Background(), "s1", "Book me a suite")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "Your suite is booked and confirmed by email." {
		t.Errorf("out = %q", out)
	}

	// Second request is the skill agent's: its own system prompt, the
	// delegated query, and the mock tool declared.
	skillReq := p.requests[1]
	if skillReq.Messages[0].Content != "Handle the room booking end to end." {
		t.Errorf("skill system = %q", skillReq.Messages[0].Content)
	}
	if skillReq.Messages[1].Content != "book a suite" {
		t.Errorf("skill query = %q", skillReq.Messages[1].Content)
	}
	if len(skillReq.Tools) != 1 || skillReq.Tools[0].Function.Name != "send_email" {
		t.Errorf("skill tools = %+v", skillReq.Tools)
	}

	// Third request carries the mock tool result back to the skill agent.
	toolMsg := p.requests[2].Messages[len(p.requests[2].Messages)-1]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "c2" {
		t.Fatalf("tool message = %+v", toolMsg)
	}
	want := "[Mock Response from send_email] Successfully processed: confirmation"
	if toolMsg.Content != want {
		t.Errorf("mock result = %q, want %q", toolMsg.Content, want)
	}
}

func TestInvokeCarriesSessionHistory(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "First.", FinishReason: "stop"},
		{Content: "Second.", FinishReason: "stop"},
	}}
	r, err := BuildRunnable(bookingConfig(), testRouter(t, p), "m", "agent", zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if _, err := r.Invoke(context.Background(), "s1", "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Invoke(context.Background(), "s1", "two"); err != nil {
		t.Fatal(err)
	}

	// system + prior user/assistant pair + new user message.
	second := p.requests[1]
	if len(second.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(second.Messages))
	}
	if second.Messages[1].Content != "one" || second.Messages[2].Content != "First." {
		t.Errorf("history = %+v", second.Messages)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "A.", FinishReason: "stop"},
		{Content: "B.", FinishReason: "stop"},
	}}
	r, err := BuildRunnable(bookingConfig(), testRouter(t, p), "m", "agent", zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	r.Invoke(context.Background(), "alice", "hi")
	r.Invoke(context.Background(), "bob", "hi")

	// Bob's request must not carry Alice's history.
	if len(p.requests[1].Messages) != 2 {
		t.Errorf("bob's messages = %d, want 2", len(p.requests[1].Messages))
	}
}

func TestInvokeToolRoundsBounded(t *testing.T) {
	// A model that never stops calling tools must still terminate.
	loop := &provider.ChatResponse{
		FinishReason: "tool_calls",
		ToolCalls:    []provider.ToolCall{toolCall("c", "room_booking", `{"query":"x"}`)},
	}
	responses := make([]*provider.ChatResponse, 0, maxToolRounds*(maxToolRounds+1))
	for i := 0; i < cap(responses); i++ {
		responses = append(responses, loop)
	}
	p := &scriptedProvider{responses: responses}
	r, err := BuildRunnable(bookingConfig(), testRouter(t, p), "m", "agent", zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if _, err := r.Invoke(context.Background(), "s1", "go"); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	// Entrance loop capped, and each delegated skill run capped too.
	if p.calls > maxToolRounds*(maxToolRounds+1) {
		t.Errorf("provider called %d times", p.calls)
	}
}

func TestInvokeStream(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "Streamed answer.", FinishReason: "stop"},
	}}
	r, err := BuildRunnable(bookingConfig(), testRouter(t, p), "m", "agent", zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ch, err := r.InvokeStream(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var b strings.Builder
	for chunk := range ch {
		b.WriteString(chunk.Content)
	}
	if b.String() != "Streamed answer." {
		t.Errorf("streamed = %q", b.String())
	}
}

func TestSessionMemoryTrimsOldest(t *testing.T) {
	m := NewSessionMemory(4)
	for i := 0; i < 6; i++ {
		m.Append("s", provider.Message{Role: "user", Content: string(rune('a' + i))})
	}
	h := m.History("s")
	if len(h) != 4 {
		t.Fatalf("len = %d, want 4", len(h))
	}
	if h[0].Content != "c" || h[3].Content != "f" {
		t.Errorf("history = %+v", h)
	}

	m.Clear("s")
	if len(m.History("s")) != 0 {
		t.Error("clear left history behind")
	}
}
