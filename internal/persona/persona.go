// Package persona loads the assistant persona used as the base of every
// system prompt.
package persona

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultPersona is used when no persona file is configured or the file is
// missing or empty.
const DefaultPersona = "You are a helpful assistant with a persistent memory. " +
	"Keep replies concise and conversational; this is a chat, not a document. " +
	"Use your memory of the user and prior conversations when it is relevant."

// Loader reads the persona file once and caches it.
type Loader struct {
	path string

	once   sync.Once
	cached string
}

// NewLoader creates a loader for the given path. Empty path means the
// built-in default.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Text returns the persona text, falling back to DefaultPersona.
func (l *Loader) Text() string {
	l.once.Do(func() {
		l.cached = DefaultPersona
		if l.path == "" {
			return
		}
		data, err := os.ReadFile(l.path)
		if err != nil {
			slog.Warn("persona.read_failed", "path", l.path, "error", err)
			return
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			slog.Warn("persona.empty_file", "path", l.path)
			return
		}
		l.cached = text
	})
	return l.cached
}
