package command

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/thread"
	"github.com/draftworks/agentsmith/internal/transcript"
)

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{
		Name:        "ping",
		Description: "Ping test",
		Usage:       "/ping",
		Handler: func(ctx context.Context, args string, cc *Context) (*Result, error) {
			return &Result{Content: "pong: " + args}, nil
		},
	})

	ctx := context.Background()
	cc := &Context{Platform: "test"}

	result, err := reg.Dispatch(ctx, "/ping hello", cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "pong: hello" {
		t.Errorf("got %q, want %q", result.Content, "pong: hello")
	}

	result, err = reg.Dispatch(ctx, "/unknown", cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Content, "Unknown command") {
		t.Errorf("got %q", result.Content)
	}
}

func TestIsCommand(t *testing.T) {
	if !IsCommand("/help") || !IsCommand("  /restart") {
		t.Error("slash input not recognized")
	}
	if IsCommand("hello") || IsCommand("") {
		t.Error("plain input treated as command")
	}
}

type dropRecorder struct {
	dropped []string
}

func (d *dropRecorder) DropAgent(id string) { d.dropped = append(d.dropped, id) }

func builtinFixture(t *testing.T) (*Registry, *thread.Store, *thread.Thread, *dropRecorder) {
	t.Helper()
	threads := thread.NewStore(nil, zap.NewNop())
	th := threads.New()
	drops := &dropRecorder{}
	reg := NewRegistry()
	RegisterBuiltins(reg, threads, drops)
	return reg, threads, th, drops
}

func TestRestartCommand(t *testing.T) {
	reg, threads, th, drops := builtinFixture(t)
	th.Update(map[string]any{"name": "Keeper"})

	res, err := reg.Dispatch(context.Background(), "/restart", &Context{ThreadID: th.ID()})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.NewThreadID == "" || res.NewThreadID == th.ID() {
		t.Fatalf("new thread id = %q", res.NewThreadID)
	}
	if _, ok := threads.Get(th.ID()); ok {
		t.Error("old thread survived restart")
	}
	if len(drops.dropped) != 1 || drops.dropped[0] != th.ID() {
		t.Errorf("dropped = %v", drops.dropped)
	}
}

func TestConfigCommand(t *testing.T) {
	reg, _, th, _ := builtinFixture(t)
	cc := &Context{ThreadID: th.ID()}

	res, _ := reg.Dispatch(context.Background(), "/config", cc)
	if !strings.Contains(res.Content, "No configuration yet") {
		t.Errorf("empty config output = %q", res.Content)
	}

	th.Update(map[string]any{"name": "Hotel Agent"})
	res, _ = reg.Dispatch(context.Background(), "/config", cc)
	if !strings.Contains(res.Content, "Hotel Agent") || !strings.Contains(res.Content, "in progress") {
		t.Errorf("partial config output = %q", res.Content)
	}
}

func TestMockCommand(t *testing.T) {
	reg, _, th, _ := builtinFixture(t)
	cc := &Context{ThreadID: th.ID()}

	res, _ := reg.Dispatch(context.Background(), "/mock", cc)
	if !strings.Contains(res.Content, "No mock conversation") {
		t.Errorf("empty mock output = %q", res.Content)
	}

	th.SetMockConversation([]transcript.Turn{
		{Speaker: transcript.SpeakerUser, Text: "Hi"},
		{Speaker: transcript.SpeakerAgent, Text: "Hello!"},
	})
	res, _ = reg.Dispatch(context.Background(), "/mock", cc)
	if !strings.Contains(res.Content, "**User:** Hi") || !strings.Contains(res.Content, "**Agent:** Hello!") {
		t.Errorf("mock output = %q", res.Content)
	}
}

func TestCatalogAndHelpCommands(t *testing.T) {
	reg, _, th, _ := builtinFixture(t)
	cc := &Context{ThreadID: th.ID()}

	res, _ := reg.Dispatch(context.Background(), "/catalog", cc)
	if !strings.Contains(res.Content, "knowledge_search") || !strings.Contains(res.Content, "transfer_to_human") {
		t.Errorf("catalog output = %q", res.Content)
	}

	res, _ = reg.Dispatch(context.Background(), "/help", cc)
	for _, name := range []string{"/restart", "/config", "/mock", "/catalog"} {
		if !strings.Contains(res.Content, name) {
			t.Errorf("help missing %s: %q", name, res.Content)
		}
	}
}
