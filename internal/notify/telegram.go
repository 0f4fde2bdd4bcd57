// Package notify announces new diary posts in the family Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/event"
	"github.com/victornm/familytrip/internal/telemetry"
)

const (
	defaultAPIURL = "https://api.telegram.org"

	maxCaptionContent = 150
	maxMessageContent = 200
)

type Config struct {
	Token string
	// ChatID is a numeric chat id or a public @channel name.
	ChatID string
	// APIURL defaults to the public Bot API.
	APIURL     string
	HTTPClient *http.Client
}

type Telegram struct {
	bot    *tgbotapi.BotAPI
	client *http.Client

	chatID  int64
	channel string
}

func NewTelegram(c Config) *Telegram {
	apiURL := c.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	// Built without the constructor so startup does not call getMe.
	bot := &tgbotapi.BotAPI{Token: c.Token, Client: client, Buffer: 100}
	bot.SetAPIEndpoint(strings.TrimRight(apiURL, "/") + "/bot%s/%s")

	t := &Telegram{bot: bot, client: client}
	if id, err := strconv.ParseInt(c.ChatID, 10, 64); err == nil {
		t.chatID = id
	} else {
		t.channel = c.ChatID
	}
	return t
}

// Enabled reports whether both the bot token and the chat are configured.
func (t *Telegram) Enabled() bool {
	return t.bot.Token != "" && (t.chatID != 0 || t.channel != "")
}

// Subscribe sends every created diary post to the chat. Failures are logged
// and never reach the author.
func (t *Telegram) Subscribe(eb *event.Bus) (unsubscribe func()) {
	return eb.Subscribe(domain.EventNameDiaryPostCreated, func(ctx context.Context, e event.Event) error {
		created, ok := e.(domain.EventDiaryPostCreated)
		if !ok {
			return fmt.Errorf("unexpected event type %T", e)
		}

		if err := t.NotifyPost(ctx, created.Post); err != nil {
			telemetry.Notifications.WithLabelValues("failed").Inc()
			slog.ErrorContext(ctx, "notify: send diary post", "post_id", created.Post.PostID, "error", err)
			return nil
		}

		telemetry.Notifications.WithLabelValues("sent").Inc()
		return nil
	})
}

// NotifyPost sends the post as a photo with caption when it has one, and as
// a text message otherwise.
func (t *Telegram) NotifyPost(ctx context.Context, post domain.DiaryPost) error {
	if post.Media != nil && post.Media.URL != "" {
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileURL(post.Media.URL))
		photo.ChannelUsername = t.channel
		photo.Caption = formatCaption(post)
		photo.ParseMode = tgbotapi.ModeHTML
		return t.send(ctx, "sendPhoto", photo)
	}

	msg := tgbotapi.NewMessage(t.chatID, formatMessage(post))
	msg.ChannelUsername = t.channel
	msg.ParseMode = tgbotapi.ModeHTML
	return t.send(ctx, "sendMessage", msg)
}

func (t *Telegram) send(ctx context.Context, method string, c tgbotapi.Chattable) error {
	bot := *t.bot
	bot.Client = contextClient{ctx: ctx, client: t.client}

	msg, err := bot.Send(c)
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s: telegram api error: %s", method, apiErr.Message)
		}
		// Transport errors carry the request URL, which holds the bot token.
		return fmt.Errorf("%s: request failed", method)
	}

	slog.InfoContext(ctx, "notify: telegram message sent", "method", method, "message_id", msg.MessageID)
	return nil
}

// contextClient binds Bot API requests to the caller's context.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

func formatCaption(post domain.DiaryPost) string {
	var b strings.Builder
	writeHeader(&b, post, "📷")
	if content := truncate(post.Content, maxCaptionContent); content != "" {
		b.WriteString(html.EscapeString(content))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "<i>#photo #%s</i>", post.PostID)
	return b.String()
}

func formatMessage(post domain.DiaryPost) string {
	var b strings.Builder
	writeHeader(&b, post, "📝")
	b.WriteString(html.EscapeString(truncate(post.Content, maxMessageContent)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "<i>#diary #%s</i>", post.PostID)
	return b.String()
}

func writeHeader(b *strings.Builder, post domain.DiaryPost, defaultEmoji string) {
	emoji := post.Emoji
	if emoji == "" {
		emoji = defaultEmoji
	}
	author := post.AuthorName
	if author == "" {
		author = "Unknown author"
	}
	at := post.CreateTime
	if at.IsZero() {
		at = time.Now()
	}

	fmt.Fprintf(b, "%s <b>%s</b>\n📅 %s\n\n", emoji, html.EscapeString(author), at.Format("02.01.2006"))
}

// truncate shortens s to at most n runes, ending with "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
