package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"econbot/internal/model"
)

type Previewer interface {
	Preview(ctx context.Context) (string, error)
}

type Submitter interface {
	Submit(ctx context.Context, category model.Category, content string) error
}

func ViewCmdStart() ViewFunc {
	return func(ctx context.Context, bot BotAPI, update tgbotapi.Update) error {
		text := "Привет! Я собираю рыночные данные и новости.\n/digest покажет сегодняшний закреп."
		if _, err := bot.Send(tgbotapi.NewMessage(update.FromChat().ID, text)); err != nil {
			return err
		}

		return nil
	}
}

// ViewCmdDigest shows what today's pinned digest looks like.
func ViewCmdDigest(previewer Previewer) ViewFunc {
	return func(ctx context.Context, bot BotAPI, update tgbotapi.Update) error {
		text, err := previewer.Preview(ctx)
		if err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(update.FromChat().ID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := bot.Send(msg); err != nil {
			return err
		}

		return nil
	}
}

// ViewCallbackMerge puts the pressed message into the digest section named in the callback data.
func ViewCallbackMerge(submitter Submitter) ViewFunc {
	return func(ctx context.Context, bot BotAPI, update tgbotapi.Update) error {
		query := update.CallbackQuery

		category, err := model.ParseCategory(strings.TrimPrefix(query.Data, model.ActionMergePrefix))
		if err != nil {
			_, ansErr := bot.Request(tgbotapi.NewCallbackWithAlert(query.ID, "Неизвестный тип контента"))
			return ansErr
		}

		if query.Message == nil {
			return fmt.Errorf("merge %s: callback without message", category)
		}

		content := ExtractContent(messageText(query.Message))
		if content == "" {
			_, err := bot.Request(tgbotapi.NewCallbackWithAlert(query.ID, "Сообщение пустое"))
			return err
		}

		if err := submitter.Submit(ctx, category, content); err != nil {
			return err
		}

		_, err = bot.Request(tgbotapi.NewCallback(query.ID, "Закреп обновлён"))
		return err
	}
}

// ViewCallbackDelete removes the alert from the review chat and nothing else.
func ViewCallbackDelete() ViewFunc {
	return func(ctx context.Context, bot BotAPI, update tgbotapi.Update) error {
		query := update.CallbackQuery
		if query.Message == nil {
			return fmt.Errorf("delete: callback without message")
		}

		if _, err := bot.Request(tgbotapi.NewDeleteMessage(query.Message.Chat.ID, query.Message.MessageID)); err != nil {
			return err
		}

		_, err := bot.Request(tgbotapi.NewCallback(query.ID, "Сообщение удалено"))
		return err
	}
}

// ViewCallbackForward copies the alert into the channel.
func ViewCallbackForward(channelID int64) ViewFunc {
	return func(ctx context.Context, bot BotAPI, update tgbotapi.Update) error {
		query := update.CallbackQuery
		if query.Message == nil {
			return fmt.Errorf("forward: callback without message")
		}

		if _, err := bot.Request(tgbotapi.NewCopyMessage(channelID, query.Message.Chat.ID, query.Message.MessageID)); err != nil {
			return err
		}

		_, err := bot.Request(tgbotapi.NewCallback(query.ID, "Новость переслана в канал"))
		return err
	}
}

// ExtractContent turns the plain text of an alert back into section content:
// blank lines and a leading "Title:" header go, the rest is escaped for HTML.
func ExtractContent(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) > 1 && strings.HasSuffix(lines[0], ":") {
		lines = lines[1:]
	}

	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}

	return strings.Join(lines, "\n")
}

func messageText(m *tgbotapi.Message) string {
	if m.Caption != "" {
		return m.Caption
	}

	return m.Text
}
