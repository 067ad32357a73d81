// Package auth implements the sender authorization gate.
//
// Every inbound message passes through the gate before it can reach the
// bridge. A sender is authorized when their normalized ID appears in the
// global allowlist or in the allowlist of the channel the message arrived
// on. Empty allowlists deny everyone — there is no open mode.
package auth

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/membridge/internal/config"
)

// Gate answers authorization queries against reloadable allowlists.
type Gate struct {
	mu       sync.RWMutex
	global   map[string]bool
	channels map[string]map[string]bool

	// one format-mismatch warning per channel, reset on Replace;
	// guarded by mu
	warned map[string]struct{}
}

// NewGate builds a gate from the auth config.
func NewGate(cfg config.AuthConfig) *Gate {
	g := &Gate{}
	g.Replace(cfg)
	return g
}

// Replace atomically swaps the allowlists. Used by the config watcher.
func (g *Gate) Replace(cfg config.AuthConfig) {
	global := make(map[string]bool, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		global[NormalizeID(id)] = true
	}
	channels := make(map[string]map[string]bool, len(cfg.Channels))
	for name, ids := range cfg.Channels {
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[NormalizeID(id)] = true
		}
		channels[name] = set
	}

	g.mu.Lock()
	g.global = global
	g.channels = channels
	g.warned = make(map[string]struct{})
	g.mu.Unlock()
}

// IsAuthorized reports whether the sender may talk to the bridge on the
// given channel. Accepts string and numeric IDs interchangeably: the same
// user passes whether the config lists 12345 or "12345".
func (g *Gate) IsAuthorized(channel string, userID interface{}) bool {
	id := NormalizeID(userID)
	if id == "" {
		return false
	}

	g.mu.RLock()
	ok := g.global[id] || g.channels[channel][id]
	g.mu.RUnlock()

	if ok {
		return true
	}

	// Diagnostics only — the decision above is final.
	if isNumeric(id) && g.markFormatMismatch(channel) {
		slog.Warn("auth.allowlist_format_mismatch",
			"channel", channel,
			"hint", "incoming IDs are numeric but the allowlist contains handles; list numeric user IDs instead",
		)
	}
	slog.Debug("auth.denied", "channel", channel, "user", id)
	return false
}

// markFormatMismatch reports whether the first handle-style mismatch for a
// channel was just recorded. Either the channel list or the global list
// holding handles is the same hygiene problem, so both are inspected.
func (g *Gate) markFormatMismatch(channel string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !looksLikeHandleList(g.channels[channel]) && !looksLikeHandleList(g.global) {
		return false
	}
	if _, dup := g.warned[channel]; dup {
		return false
	}
	g.warned[channel] = struct{}{}
	return true
}

// NormalizeID converts any supported ID representation to its canonical
// string form. Numeric types render without decimals so JSON-decoded
// float64 IDs match their string spelling.
func NormalizeID(userID interface{}) string {
	switch v := userID.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// looksLikeHandleList reports whether an allowlist appears to hold
// display handles ("@alice") rather than platform user IDs.
func looksLikeHandleList(set map[string]bool) bool {
	if len(set) == 0 {
		return false
	}
	for entry := range set {
		if strings.HasPrefix(entry, "@") {
			return true
		}
		if !isNumeric(entry) {
			return true
		}
	}
	return false
}
