package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"econbot/internal/model"
)

// BotAPI is the part of tgbotapi.BotAPI the notifier needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier publishes the pinned digest to the channel and standalone alerts
// to the operator chat.
type Notifier struct {
	bot          BotAPI
	channelID    int64
	reviewChatID int64
	log          *slog.Logger
}

func New(bot BotAPI, channelID, reviewChatID int64, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		bot:          bot,
		channelID:    channelID,
		reviewChatID: reviewChatID,
		log:          log.With("component", "notifier"),
	}
}

// CreateAndPin sends the digest and pins it. A failed pin still returns the ref:
// the message exists and is edited from now on.
func (n *Notifier) CreateAndPin(ctx context.Context, text string) (model.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(n.channelID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := n.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("send digest: %w: %v", model.ErrTransport, err)
	}

	ref := model.MessageRef(strconv.Itoa(sent.MessageID))

	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              n.channelID,
		MessageID:           sent.MessageID,
		DisableNotification: true,
	}
	if _, err := n.bot.Request(pin); err != nil {
		n.log.Error("pin digest failed", "ref", ref, "error", err)
	}

	return ref, nil
}

func (n *Notifier) Edit(ctx context.Context, ref model.MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := strconv.Atoi(string(ref))
	if err != nil || id <= 0 {
		return fmt.Errorf("edit %q: %w", ref, model.ErrStaleRef)
	}

	edit := tgbotapi.NewEditMessageText(n.channelID, id, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true

	if _, err := n.bot.Request(edit); err != nil {
		return classify(ref, err)
	}

	return nil
}

// SendStandalone posts an alert with inline controls to the operator chat.
func (n *Notifier) SendStandalone(ctx context.Context, text string, controls []model.Control) (model.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(n.reviewChatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(controls) > 0 {
		msg.ReplyMarkup = Keyboard(controls)
	}

	sent, err := n.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("send standalone: %w: %v", model.ErrTransport, err)
	}

	return model.MessageRef(strconv.Itoa(sent.MessageID)), nil
}

// Keyboard puts every control on one row.
func Keyboard(controls []model.Control) tgbotapi.InlineKeyboardMarkup {
	buttons := lo.Map(controls, func(c model.Control, _ int) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Action)
	})

	return tgbotapi.NewInlineKeyboardMarkup(buttons)
}

func classify(ref model.MessageRef, err error) error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "message is not modified"):
		return nil
	case strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message can't be edited"),
		strings.Contains(msg, "message_id_invalid"):
		return fmt.Errorf("edit %s: %w: %v", ref, model.ErrStaleRef, err)
	default:
		return fmt.Errorf("edit %s: %w: %v", ref, model.ErrTransport, err)
	}
}
