// Package router consumes inbound messages from the bus, applies the
// authorization gate, and drives the conversation bridge for each turn.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/membridge/internal/auth"
	"github.com/nextlevelbuilder/membridge/internal/bridge"
	"github.com/nextlevelbuilder/membridge/internal/bus"
	"github.com/nextlevelbuilder/membridge/internal/channels"
	"github.com/nextlevelbuilder/membridge/internal/sessions"
)

const (
	defaultTurnTimeout = 120 * time.Second

	// failureReply goes to the user when a turn fails. It never carries
	// provider error detail.
	failureReply = "Sorry, something went wrong while processing your message. Please try again."
)

// Processor runs one conversation turn. Satisfied by *bridge.Bridge.
type Processor interface {
	ProcessMessage(ctx context.Context, req bridge.Request) (*bridge.Reply, error)
}

// Config assembles a Router.
type Config struct {
	Gate      *auth.Gate
	Sessions  *sessions.Store
	Processor Processor
	Manager   *channels.Manager
	Bus       *bus.MessageBus

	// TurnTimeout bounds one full turn, tool rounds included.
	TurnTimeout time.Duration

	// ProactiveRatePerMin caps announce and other unprompted sends.
	ProactiveRatePerMin int
}

// Router dispatches inbound messages. Turns for the same session run one
// at a time; different sessions run concurrently.
type Router struct {
	gate      *auth.Gate
	sessions  *sessions.Store
	processor Processor
	manager   *channels.Manager
	bus       *bus.MessageBus

	turnTimeout  time.Duration
	limiter      *rate.Limiter
	sessionLocks sync.Map // session key string → *sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Router.
func New(cfg Config) *Router {
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}

	perMin := cfg.ProactiveRatePerMin
	if perMin <= 0 {
		perMin = 20
	}

	return &Router{
		gate:        cfg.Gate,
		sessions:    cfg.Sessions,
		processor:   cfg.Processor,
		manager:     cfg.Manager,
		bus:         cfg.Bus,
		turnTimeout: timeout,
		limiter:     rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
	}
}

// Start launches the inbound consume loop.
func (r *Router) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			msg, ok := r.bus.ConsumeInbound(runCtx)
			if !ok {
				return
			}
			r.wg.Add(1)
			go func(msg bus.InboundMessage) {
				defer r.wg.Done()
				r.handleInbound(runCtx, msg)
			}(msg)
		}
	}()
}

// Stop cancels the consume loop and waits for in-flight turns.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// handleInbound runs one turn for one inbound message. Unauthorized
// senders are dropped without any reply so the gateway stays invisible
// to strangers.
func (r *Router) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	if !r.gate.IsAuthorized(msg.Channel, msg.SenderID) {
		return
	}

	key := sessions.Key(msg.Channel, msg.SenderID)
	lock := r.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	turnCtx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()

	turnID := uuid.NewString()
	started := time.Now()
	reply, err := r.processor.ProcessMessage(turnCtx, bridge.Request{
		Channel:  msg.Channel,
		UserID:   msg.SenderID,
		UserName: msg.SenderName,
		Text:     msg.Content,
		History:  r.sessions.History(key),
	})
	if err != nil {
		slog.Error("router.turn_failed",
			"turn_id", turnID,
			"channel", msg.Channel,
			"user_id", msg.SenderID,
			"elapsed", time.Since(started),
			"error", err,
		)
		r.bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: failureReply,
		})
		return
	}

	r.sessions.Append(key, sessions.Turn{User: msg.Content, Assistant: reply.Text})

	slog.Info("router.turn_done",
		"turn_id", turnID,
		"channel", msg.Channel,
		"user_id", msg.SenderID,
		"rounds", reply.Rounds,
		"tokens", reply.Usage.TotalTokens,
		"elapsed", time.Since(started),
	)

	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply.Text,
	})
}

// SendProactive delivers an unprompted message straight to an adapter,
// skipping the gate and session history. Reports whether it was sent.
func (r *Router) SendProactive(ctx context.Context, channel, chatID, text string) bool {
	adapter, ok := r.manager.GetChannel(channel)
	if !ok || !adapter.IsRunning() {
		slog.Warn("router.proactive_no_channel", "channel", channel)
		return false
	}

	if !r.limiter.Allow() {
		slog.Warn("router.proactive_rate_limited", "channel", channel)
		return false
	}

	if err := r.manager.SendToChannel(ctx, channel, chatID, text); err != nil {
		slog.Error("router.proactive_send_failed", "channel", channel, "error", err)
		return false
	}
	return true
}

func (r *Router) sessionLock(key string) *sync.Mutex {
	val, _ := r.sessionLocks.LoadOrStore(key, &sync.Mutex{})
	return val.(*sync.Mutex)
}
