// Package announce delivers scheduled proactive messages. Each entry is
// a cron expression plus a channel, recipient, and text; entries fire on
// minute boundaries.
package announce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/membridge/internal/config"
)

// Sender delivers one proactive message. Satisfied by *router.Router.
type Sender interface {
	SendProactive(ctx context.Context, channel, chatID, text string) bool
}

// Scheduler ticks once a minute and fires every entry whose cron
// expression is due.
type Scheduler struct {
	sender Sender
	cron   *gronx.Gronx

	mu      sync.RWMutex
	entries []config.AnnounceEntry

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler over the configured entries. Entries with
// invalid cron expressions are dropped at load time.
func New(sender Sender, entries []config.AnnounceEntry) *Scheduler {
	cron := gronx.New()

	valid := make([]config.AnnounceEntry, 0, len(entries))
	for _, e := range entries {
		if !cron.IsValid(e.Cron) {
			slog.Warn("announce.invalid_cron", "cron", e.Cron, "channel", e.Channel)
			continue
		}
		valid = append(valid, e)
	}

	return &Scheduler{sender: sender, cron: cron, entries: valid}
}

// Replace swaps the entry set, validating each expression. Used on
// config reload.
func (s *Scheduler) Replace(entries []config.AnnounceEntry) {
	cron := gronx.New()
	valid := make([]config.AnnounceEntry, 0, len(entries))
	for _, e := range entries {
		if !cron.IsValid(e.Cron) {
			slog.Warn("announce.invalid_cron", "cron", e.Cron, "channel", e.Channel)
			continue
		}
		valid = append(valid, e)
	}

	s.mu.Lock()
	s.entries = valid
	s.mu.Unlock()
}

// Start launches the minute loop. No-op when there are no entries at
// start; entries added later by Replace still fire.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)
}

// Stop halts the minute loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// EntryCount reports how many valid entries are loaded.
func (s *Scheduler) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	// Align the first tick to the next minute boundary so cron
	// expressions evaluate against a clean reference time.
	wait := time.Until(time.Now().Truncate(time.Minute).Add(time.Minute))
	select {
	case <-ctx.Done():
		return
	case <-time.After(wait):
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.fireDue(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

// fireDue sends every entry whose expression matches the reference time.
func (s *Scheduler) fireDue(ctx context.Context, ref time.Time) {
	s.mu.RLock()
	entries := make([]config.AnnounceEntry, len(s.entries))
	copy(entries, s.entries)
	s.mu.RUnlock()

	for _, e := range entries {
		due, err := s.cron.IsDue(e.Cron, ref)
		if err != nil {
			slog.Warn("announce.cron_eval_failed", "cron", e.Cron, "error", err)
			continue
		}
		if !due {
			continue
		}

		if s.sender.SendProactive(ctx, e.Channel, e.To, e.Text) {
			slog.Info("announce.sent", "channel", e.Channel, "to", e.To, "cron", e.Cron)
		}
	}
}
