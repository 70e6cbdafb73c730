package bot

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

type ViewFunc func(ctx context.Context, bot BotAPI, update tgbotapi.Update) error

type Bot struct {
	api           BotAPI
	cmdViews      map[string]ViewFunc
	callbackViews map[string]ViewFunc
	log           *slog.Logger
}

func New(api BotAPI, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}

	return &Bot{api: api, log: log.With("component", "bot")}
}

func (b *Bot) RegisterCmdView(cmd string, view ViewFunc) {
	if b.cmdViews == nil {
		b.cmdViews = make(map[string]ViewFunc)
	}

	b.cmdViews[cmd] = view
}

// RegisterCallbackView handles inline button presses whose data starts with prefix.
func (b *Bot) RegisterCallbackView(prefix string, view ViewFunc) {
	if b.callbackViews == nil {
		b.callbackViews = make(map[string]ViewFunc)
	}

	b.callbackViews[prefix] = view
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// перехватываем панику в ViewFunc
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("panic in view recovered", "panic", p)
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update)
		return
	}

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	command := update.Message.Command()

	view, ok := b.cmdViews[command]
	if !ok {
		return
	}

	if err := view(ctx, b.api, update); err != nil {
		b.log.Error("execute view fail", "command", command, "error", err)

		if _, sendErr := b.api.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "Internal error")); sendErr != nil {
			b.log.Error("failed to send error message", "error", sendErr)
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, update tgbotapi.Update) {
	query := update.CallbackQuery

	view, ok := b.callbackView(query.Data)
	if !ok {
		b.log.Warn("unknown callback", "data", query.Data)
		return
	}

	if err := view(ctx, b.api, update); err != nil {
		b.log.Error("execute callback fail", "data", query.Data, "error", err)

		if _, ansErr := b.api.Request(tgbotapi.NewCallbackWithAlert(query.ID, "Ошибка при обработке")); ansErr != nil {
			b.log.Error("failed to answer callback", "error", ansErr)
		}
	}
}

// callbackView picks the longest registered prefix of data.
func (b *Bot) callbackView(data string) (ViewFunc, bool) {
	prefixes := make([]string, 0, len(b.callbackViews))
	for prefix := range b.callbackViews {
		if strings.HasPrefix(data, prefix) {
			prefixes = append(prefixes, prefix)
		}
	}

	if len(prefixes) == 0 {
		return nil, false
	}

	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	return b.callbackViews[prefixes[0]], true
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			updateCtx, updateCancel := context.WithTimeout(ctx, 5*time.Minute)
			b.handleUpdate(updateCtx, update)
			updateCancel()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
