// Package telegram connects the gateway to the Telegram Bot API via
// long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/membridge/internal/bus"
	"github.com/nextlevelbuilder/membridge/internal/channels"
)

// Telegram caps message text at 4096 characters.
const maxMessageLen = 4096

// Channel is the Telegram adapter.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel from a bot token.
func New(token string, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus),
		bot:         bot,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram.connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram.updates_closed")
					return
				}
				c.handleUpdate(update)
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the polling goroutine so
// Telegram releases the getUpdates lock before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram.poll_exit_timeout")
		}
	}
	return nil
}

// Send delivers an outbound message, chunking at the Telegram text limit.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	if msg.Content == "" {
		return nil
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", msg.ChatID, err)
	}

	for _, chunk := range channels.SplitMessage(msg.Content, maxMessageLen) {
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// handleUpdate publishes an incoming message onto the bus. Service
// updates and messages without a sender are skipped.
func (c *Channel) handleUpdate(update telego.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	content := message.Text
	if content == "" {
		content = message.Caption
	}
	if content == "" {
		return
	}

	user := message.From
	senderID := strconv.FormatInt(user.ID, 10)
	senderName := user.FirstName
	if senderName == "" {
		senderName = user.Username
	}

	slog.Debug("telegram.message",
		"user_id", user.ID,
		"username", user.Username,
		"chat_id", message.Chat.ID,
		"preview", channels.Truncate(content, 60),
	)

	metadata := map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
		"username":   user.Username,
		"chat_type":  message.Chat.Type,
	}

	c.PublishInbound(senderID, senderName, strconv.FormatInt(message.Chat.ID, 10), content, metadata)
}
