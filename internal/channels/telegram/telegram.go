// Package telegram connects Telegram group chats to the pipeline via the Bot
// API using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/model"
)

const ChannelName = "telegram"

// jidSuffix turns numeric Telegram IDs into the JID-shaped strings the rest
// of the pipeline works with.
const jidSuffix = "@telegram"

type Config struct {
	Token string
}

type Channel struct {
	bot        *telego.Bot
	bus        *bus.MessageBus
	selfJID    string
	username   string
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg Config, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{bot: bot, bus: msgBus}, nil
}

func (c *Channel) Name() string { return ChannelName }

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	me, err := c.bot.GetMe(pollCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram getMe: %w", err)
	}
	c.selfJID = strconv.FormatInt(me.ID, 10) + jidSuffix
	c.username = me.Username

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram bot connected", "username", c.username)

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()
	return nil
}

// Stop cancels long polling and waits for the goroutine to exit so Telegram
// releases the getUpdates lock before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := parseChatJID(msg.ChatJID)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}

	params := tu.Message(tu.ID(chatID), msg.Content)
	if msg.ReplyToID != "" {
		if replyID, err := strconv.Atoi(msg.ReplyToID); err == nil {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: replyID}
		}
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (c *Channel) handleMessage(tgMsg *telego.Message) {
	text := tgMsg.Text
	if text == "" {
		text = tgMsg.Caption
	}

	chatJID := strconv.FormatInt(tgMsg.Chat.ID, 10) + jidSuffix
	msg := model.Message{
		MessageID: strconv.Itoa(tgMsg.MessageID),
		ChatJID:   chatJID,
		Text:      text,
		Timestamp: time.Unix(int64(tgMsg.Date), 0).UTC(),
	}
	if tgMsg.From != nil {
		msg.SenderJID = strconv.FormatInt(tgMsg.From.ID, 10) + jidSuffix
	}
	// Telegram has no separate group identity; supergroups reuse the chat ID.
	if tgMsg.Chat.Type == telego.ChatTypeGroup || tgMsg.Chat.Type == telego.ChatTypeSupergroup {
		msg.GroupJID = chatJID
	}
	if tgMsg.ReplyToMessage != nil {
		msg.ReplyToID = strconv.Itoa(tgMsg.ReplyToMessage.MessageID)
	}

	ok := c.bus.PublishInbound(bus.InboundMessage{
		Channel:   ChannelName,
		SelfJID:   c.selfJID,
		Mentioned: c.mentioned(tgMsg),
		Message:   msg,
	})
	if !ok {
		slog.Warn("inbound bus full, dropping telegram message",
			"message_id", msg.MessageID, "chat_jid", chatJID)
	}
}

// mentioned reports whether the bot's @username appears in a mention entity
// of the message text or caption.
func (c *Channel) mentioned(tgMsg *telego.Message) bool {
	if c.username == "" {
		return false
	}
	handle := "@" + c.username

	check := func(entities []telego.MessageEntity, text string) bool {
		for _, e := range entities {
			if e.Type != telego.EntityTypeMention {
				continue
			}
			runes := []rune(text)
			if e.Offset+e.Length > len(runes) {
				continue
			}
			if strings.EqualFold(string(runes[e.Offset:e.Offset+e.Length]), handle) {
				return true
			}
		}
		return false
	}
	return check(tgMsg.Entities, tgMsg.Text) || check(tgMsg.CaptionEntities, tgMsg.Caption)
}

func parseChatJID(jid string) (int64, error) {
	raw := strings.TrimSuffix(jid, jidSuffix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed chat jid %q", jid)
	}
	return id, nil
}
