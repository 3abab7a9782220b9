// Package notify delivers run notices to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/config"
	"github.com/xkilldash9x/renewbot/internal/network"
)

// ErrNotConfigured is returned when the bot token or chat is missing.
var ErrNotConfigured = errors.New("telegram notifier is not configured")

// Telegram sends each notice as a Markdown text message followed by its
// screenshot, if one exists.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	channel string
	caption string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewTelegram authenticates the bot against the API (getMe) and resolves the
// target chat. A numeric chat ID is used as is; anything else is treated as a
// channel username.
func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	clientCfg := network.NewDefaultClientConfig()
	if cfg.Timeout > 0 {
		clientCfg.RequestTimeout = cfg.Timeout
	}
	clientCfg.Logger = logger
	client := network.NewClient(clientCfg)

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	t := &Telegram{
		bot:     bot,
		caption: cfg.Caption,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("telegram"),
	}
	if id, err := strconv.ParseInt(cfg.ChatID, 10, 64); err == nil {
		t.chatID = id
	} else {
		t.channel = cfg.ChatID
	}
	t.logger.Info("Telegram notifier ready.", zap.String("bot", bot.Self.UserName))
	return t, nil
}

// Name identifies the sink in logs.
func (t *Telegram) Name() string {
	return "telegram"
}

// Deliver sends the text and then the screenshot. The photo is still attempted
// when the text fails; both failures are returned together.
func (t *Telegram) Deliver(ctx context.Context, n schemas.Notice) error {
	var errs []error
	if err := t.send(ctx, t.newMessage(n.Text)); err != nil {
		errs = append(errs, fmt.Errorf("text message: %w", err))
	} else {
		t.logger.Debug("Text message sent.", zap.String("kind", string(n.Kind)))
	}

	if n.Shot != nil && n.Shot.Path != "" {
		if _, err := os.Stat(n.Shot.Path); err != nil {
			t.logger.Debug("Screenshot missing, skipping photo.", zap.String("path", n.Shot.Path))
		} else if err := t.send(ctx, t.newPhoto(n.Shot.Path)); err != nil {
			errs = append(errs, fmt.Errorf("photo %s: %w", n.Shot.Path, err))
		} else {
			t.logger.Debug("Photo sent.", zap.String("path", n.Shot.Path))
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.Send(c)
	return err
}

func (t *Telegram) newMessage(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}

func (t *Telegram) newPhoto(path string) tgbotapi.PhotoConfig {
	var photo tgbotapi.PhotoConfig
	if t.channel != "" {
		photo = tgbotapi.NewPhotoToChannel(t.channel, tgbotapi.FilePath(path))
	} else {
		photo = tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(path))
	}
	photo.Caption = t.caption
	return photo
}
