package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/draftworks/agentsmith/internal/schema"
	"github.com/draftworks/agentsmith/internal/thread"
)

// AgentDropper discards a thread's built agent. The builder satisfies this;
// the interface keeps builtin commands off the concrete type.
type AgentDropper interface {
	DropAgent(threadID string)
}

// RegisterBuiltins wires up the built-in slash commands: /help, /restart,
// /config, /mock, and /catalog.
func RegisterBuiltins(reg *Registry, threads *thread.Store, agents AgentDropper) {
	reg.Register(helpCommand(reg))
	reg.Register(restartCommand(threads, agents))
	reg.Register(configCommand(threads))
	reg.Register(mockCommand(threads))
	reg.Register(catalogCommand())
}

func helpCommand(reg *Registry) *Command {
	return &Command{
		Name:        "help",
		Description: "List all available commands",
		Usage:       "/help",
		Handler: func(_ context.Context, _ string, _ *Context) (*Result, error) {
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range reg.List() {
				fmt.Fprintf(&b, "  /%s — %s\n", c.Name, c.Description)
				if c.Usage != "" {
					fmt.Fprintf(&b, "    Usage: %s\n", c.Usage)
				}
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

func restartCommand(threads *thread.Store, agents AgentDropper) *Command {
	return &Command{
		Name:        "restart",
		Description: "Discard this conversation and start over with a fresh thread",
		Usage:       "/restart",
		Handler: func(_ context.Context, _ string, cc *Context) (*Result, error) {
			fresh := threads.Restart(cc.ThreadID)
			if agents != nil {
				agents.DropAgent(cc.ThreadID)
			}
			return &Result{
				Content:     "Conversation restarted. All configuration and history were discarded.",
				NewThreadID: fresh.ID(),
			}, nil
		},
	}
}

func configCommand(threads *thread.Store) *Command {
	return &Command{
		Name:        "config",
		Description: "Show the current agent configuration",
		Usage:       "/config",
		Handler: func(_ context.Context, _ string, cc *Context) (*Result, error) {
			th, ok := threads.Get(cc.ThreadID)
			if !ok {
				return &Result{Content: "No active thread."}, nil
			}
			state := th.Read()
			if state.Kind() == thread.ConfigEmpty {
				return &Result{Content: "No configuration yet. Describe the agent you want to build."}, nil
			}
			raw, err := json.MarshalIndent(state.AsMap(), "", "  ")
			if err != nil {
				return nil, err
			}
			label := "in progress"
			if state.Kind() == thread.ConfigValidated {
				label = "valid"
			}
			return &Result{Content: fmt.Sprintf("Configuration (%s):\n```json\n%s\n```", label, raw)}, nil
		},
	}
}

func mockCommand(threads *thread.Store) *Command {
	return &Command{
		Name:        "mock",
		Description: "Show the mock conversation for the configured agent",
		Usage:       "/mock",
		Handler: func(_ context.Context, _ string, cc *Context) (*Result, error) {
			th, ok := threads.Get(cc.ThreadID)
			if !ok {
				return &Result{Content: "No active thread."}, nil
			}
			turns := th.MockConversation()
			if len(turns) == 0 {
				return &Result{Content: "No mock conversation yet."}, nil
			}
			var b strings.Builder
			for _, turn := range turns {
				label := string(turn.Speaker)
				if label != "" {
					label = strings.ToUpper(label[:1]) + label[1:]
				}
				fmt.Fprintf(&b, "**%s:** %s\n", label, turn.Text)
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

func catalogCommand() *Command {
	return &Command{
		Name:        "catalog",
		Description: "List the tools available to agent skills",
		Usage:       "/catalog",
		Handler: func(_ context.Context, _ string, _ *Context) (*Result, error) {
			return &Result{Content: "Available tools:\n" + schema.FormatCatalogPrompt()}, nil
		},
	}
}
