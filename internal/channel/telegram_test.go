package channel

import (
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/tinyclaw/internal/bus"
	"github.com/stellarlinkco/tinyclaw/internal/config"
)

type fakeBot struct {
	sent    []tgbotapi.MessageConfig
	sendErr error
	failed  int
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if f.sendErr != nil && f.failed == 0 {
		f.failed++
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "testbot"}
}

func newTestTelegram(t *testing.T, b *bus.MessageBus, allowFrom []string) (*TelegramChannel, *fakeBot) {
	t.Helper()
	cfg := config.TelegramConfig{Token: "token", AllowFrom: allowFrom}
	ch, err := NewTelegramChannelWithFactory(cfg, b, nil)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	bot := &fakeBot{}
	ch.SetBot(bot)
	return ch, bot
}

func TestTelegram_RequiresToken(t *testing.T) {
	b := bus.NewMessageBus(1)
	if _, err := NewTelegramChannel(config.TelegramConfig{}, b); err == nil {
		t.Fatal("want error without token")
	}
}

func TestTelegram_HandleMessagePublishesInbound(t *testing.T) {
	b := bus.NewMessageBus(4)
	ch, _ := newTestTelegram(t, b, nil)

	ch.handleMessage(&tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: 100},
		Text:      "hello",
		Date:      int(time.Now().Unix()),
	})

	select {
	case msg := <-b.Inbound:
		if msg.Channel != "telegram" || msg.SenderID != "42" || msg.ChatID != "100" || msg.Content != "hello" {
			t.Errorf("inbound = %+v", msg)
		}
	default:
		t.Fatal("no inbound message published")
	}
}

func TestTelegram_HandleMessageRejectsUnlistedSender(t *testing.T) {
	b := bus.NewMessageBus(4)
	ch, _ := newTestTelegram(t, b, []string{"1"})

	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: "hi",
	})

	select {
	case msg := <-b.Inbound:
		t.Fatalf("rejected sender leaked through: %+v", msg)
	default:
	}
}

func TestTelegram_HandleMessageUsesCaption(t *testing.T) {
	b := bus.NewMessageBus(4)
	ch, _ := newTestTelegram(t, b, nil)

	ch.handleMessage(&tgbotapi.Message{
		From:    &tgbotapi.User{ID: 1},
		Chat:    &tgbotapi.Chat{ID: 2},
		Caption: "photo caption",
	})

	select {
	case msg := <-b.Inbound:
		if msg.Content != "photo caption" {
			t.Errorf("content = %q", msg.Content)
		}
	default:
		t.Fatal("no inbound message published")
	}
}

func TestTelegram_Send(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, bot := newTestTelegram(t, b, nil)

	err := ch.Send(bus.OutboundMessage{ChatID: "100", Content: "reply"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].Text != "reply" {
		t.Errorf("sent = %+v", bot.sent)
	}
}

func TestTelegram_SendChunksLongMessages(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, bot := newTestTelegram(t, b, nil)

	long := strings.Repeat("line of output\n", 600) // well past the 4000 limit
	if err := ch.Send(bus.OutboundMessage{ChatID: "100", Content: long}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(bot.sent) < 2 {
		t.Errorf("sent %d chunks, want at least 2", len(bot.sent))
	}
	for _, msg := range bot.sent {
		if len(msg.Text) > 4000 {
			t.Errorf("chunk of %d chars exceeds limit", len(msg.Text))
		}
	}
}

func TestTelegram_SendRetriesWithoutHTML(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, bot := newTestTelegram(t, b, nil)
	bot.sendErr = errors.New("can't parse entities")

	if err := ch.Send(bus.OutboundMessage{ChatID: "100", Content: "**odd* markup"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ParseMode != "" {
		t.Errorf("retry = %+v, want plain-text fallback", bot.sent)
	}
}

func TestTelegram_SendInvalidChatID(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, _ := newTestTelegram(t, b, nil)
	if err := ch.Send(bus.OutboundMessage{ChatID: "not-a-number"}); err == nil {
		t.Fatal("want error for invalid chat id")
	}
}

func TestToTelegramHTML(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a < b & c", "a &lt; b &amp; c"},
		{"use `go test` here", "use <code>go test</code> here"},
		{"**bold** word", "<b>bold</b> word"},
		{"*lean* word", "<i>lean</i> word"},
		{"```go\nfmt.Println()\n```", "<pre>fmt.Println()\n</pre>"},
	}
	for _, c := range cases {
		if got := toTelegramHTML(c.in); got != c.want {
			t.Errorf("toTelegramHTML(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
