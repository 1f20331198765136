package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/agent"
	"github.com/draftworks/agentsmith/internal/command"
	"github.com/draftworks/agentsmith/internal/thread"
)

// AgentSource resolves a thread's built agent. The builder satisfies this.
type AgentSource interface {
	Agent(threadID string) (*agent.Runnable, bool)
}

// Router resolves inbound platform messages to a thread's built agent. Each
// (platform, channel) pair is bound to one thread; slash commands go through
// the command registry, everything else is a chat turn with the built agent.
type Router struct {
	manager  *Manager
	threads  *thread.Store
	agents   AgentSource
	commands *command.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	bindings map[string]string // platform:channel -> threadID
	onBind   func(threadID, platform, channelID string)
}

// NewRouter creates a message router.
func NewRouter(manager *Manager, threads *thread.Store, agents AgentSource, commands *command.Registry, logger *zap.Logger) *Router {
	return &Router{
		manager:  manager,
		threads:  threads,
		agents:   agents,
		commands: commands,
		logger:   logger,
		bindings: make(map[string]string),
	}
}

// Bind routes a platform channel to a thread.
func (r *Router) Bind(platform, channelID, threadID string) {
	r.mu.Lock()
	r.bindings[bindKey(platform, channelID)] = threadID
	hook := r.onBind
	r.mu.Unlock()
	if hook != nil {
		hook(threadID, platform, channelID)
	}
}

// OnBind registers a hook invoked whenever a channel is bound to a thread,
// including the implicit binding on first contact. Used to start event
// broadcasting for the pair. Set before adapters connect.
func (r *Router) OnBind(hook func(threadID, platform, channelID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onBind = hook
}

// Handle processes one inbound message and sends the reply back through the
// originating adapter. Safe to use as the Manager's MessageHandler.
func (r *Router) Handle(msg *InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reply := r.reply(ctx, msg)
	if reply == "" {
		return
	}
	if err := r.manager.Send(ctx, &OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   reply,
		ReplyTo:   msg.ReplyTo,
	}); err != nil {
		r.logger.Error("gateway reply failed",
			zap.String("platform", msg.Platform),
			zap.String("channel", msg.ChannelID),
			zap.Error(err))
	}
}

func (r *Router) reply(ctx context.Context, msg *InboundMessage) string {
	threadID := r.threadFor(msg.Platform, msg.ChannelID)

	if command.IsCommand(msg.Content) {
		res, err := r.commands.Dispatch(ctx, msg.Content, &command.Context{
			Platform:  msg.Platform,
			ChannelID: msg.ChannelID,
			UserID:    msg.UserID,
			UserName:  msg.UserName,
			ThreadID:  threadID,
		})
		if err != nil {
			r.logger.Error("command failed", zap.String("input", msg.Content), zap.Error(err))
			return "Command failed: " + err.Error()
		}
		if res.NewThreadID != "" {
			r.Bind(msg.Platform, msg.ChannelID, res.NewThreadID)
		}
		return res.Content
	}

	runnable, ok := r.agents.Agent(threadID)
	if !ok {
		return "No agent has been built on this thread yet. Build one first, or type /help."
	}

	sessionID := fmt.Sprintf("%s:%s:%s", msg.Platform, msg.ChannelID, msg.UserID)
	answer, err := runnable.Invoke(ctx, sessionID, msg.Content)
	if err != nil {
		r.logger.Error("agent invoke failed",
			zap.String("thread", threadID), zap.Error(err))
		return "Sorry, something went wrong handling that message."
	}
	return answer
}

// threadFor returns the thread bound to a channel, creating a binding to a
// fresh thread on first contact.
func (r *Router) threadFor(platform, channelID string) string {
	key := bindKey(platform, channelID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.bindings[key]; ok {
		if _, alive := r.threads.Get(id); alive {
			return id
		}
	}
	th := r.threads.New()
	r.bindings[key] = th.ID()
	hook := r.onBind
	r.logger.Info("bound channel to new thread",
		zap.String("platform", platform),
		zap.String("channel", channelID),
		zap.String("thread", th.ID()))
	if hook != nil {
		// Still under r.mu; run the hook without the lock.
		go hook(th.ID(), platform, channelID)
	}
	return th.ID()
}

func bindKey(platform, channelID string) string {
	return platform + ":" + channelID
}
