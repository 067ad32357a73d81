package channels

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/membridge/internal/bus"
)

type fakeChannel struct {
	name    string
	running bool

	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (f *fakeChannel) Name() string                    { return f.name }
func (f *fakeChannel) Start(ctx context.Context) error { f.running = true; return nil }
func (f *fakeChannel) Stop(ctx context.Context) error  { f.running = false; return nil }
func (f *fakeChannel) IsRunning() bool                 { return f.running }

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// TestDispatchOutboundRoutesByChannel verifies outbound messages reach the
// adapter named in the message and unknown channels are dropped.
func TestDispatchOutboundRoutesByChannel(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m := NewManager(msgBus)

	tg := &fakeChannel{name: "telegram"}
	dc := &fakeChannel{name: "discord"}
	m.RegisterChannel("telegram", tg)
	m.RegisterChannel("discord", dc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.StopAll(context.Background())

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "a"})
	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: "2", Content: "b"})
	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "3", Content: "c"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tg.sentCount() == 1 && dc.sentCount() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if tg.sentCount() != 1 || dc.sentCount() != 1 {
		t.Errorf("routing: telegram=%d discord=%d, want 1/1", tg.sentCount(), dc.sentCount())
	}
}

// TestSendToChannel verifies direct sends bypass the bus and unknown
// adapters are an error.
func TestSendToChannel(t *testing.T) {
	m := NewManager(bus.NewMessageBus())
	tg := &fakeChannel{name: "telegram"}
	m.RegisterChannel("telegram", tg)

	if err := m.SendToChannel(context.Background(), "telegram", "42", "hi"); err != nil {
		t.Fatal(err)
	}
	if tg.sentCount() != 1 {
		t.Errorf("sent: got %d", tg.sentCount())
	}

	if err := m.SendToChannel(context.Background(), "matrix", "42", "hi"); err == nil {
		t.Error("unknown channel should error")
	}
}

// TestSplitMessage verifies chunking respects the limit and prefers
// newline boundaries.
func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		want    []string
	}{
		{"fits in one", "hello", 10, []string{"hello"}},
		{"hard split without newline", "aaaaabbbbb", 5, []string{"aaaaa", "bbbbb"}},
		{"prefers newline boundary", "aaaaa\nbbbbb", 8, []string{"aaaaa\n", "bbbbb"}},
		{"ignores early newline", "a\nbbbbbbbb", 8, []string{"a\nbbbbbb", "bb"}},
		{"empty", "", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.content, tt.maxLen)
			if len(got) != len(tt.want) {
				t.Fatalf("chunks: got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d: got %q, want %q", i, got[i], tt.want[i])
				}
				if len(got[i]) > tt.maxLen {
					t.Errorf("chunk %d exceeds limit: %d", i, len(got[i]))
				}
			}
			if strings.Join(got, "") != tt.content {
				t.Error("chunks do not reassemble to the original")
			}
		})
	}
}
