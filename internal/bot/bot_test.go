package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"econbot/internal/model"
)

type fakeAPI struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
}

func (a *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	a.sent = append(a.sent, c)
	return tgbotapi.Message{MessageID: len(a.sent)}, nil
}

func (a *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	a.requests = append(a.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (a *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return a.updates
}

type submitRecorder struct {
	category model.Category
	content  string
	err      error
}

func (s *submitRecorder) Submit(_ context.Context, category model.Category, content string) error {
	s.category, s.content = category, content
	return s.err
}

type staticPreview string

func (p staticPreview) Preview(context.Context) (string, error) {
	return string(p), nil
}

func callback(data, text string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 77,
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      text,
		},
	}}
}

func command(cmd string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/" + cmd,
		Chat:     &tgbotapi.Chat{ID: 42},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}},
	}}
}

func newTestBot(submitter Submitter) (*Bot, *fakeAPI) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	b := New(api, nil)
	b.RegisterCmdView("start", ViewCmdStart())
	b.RegisterCmdView("digest", ViewCmdDigest(staticPreview("ℹ️ preview")))
	b.RegisterCallbackView(model.ActionMergePrefix, ViewCallbackMerge(submitter))
	b.RegisterCallbackView(model.ActionDelete, ViewCallbackDelete())
	b.RegisterCallbackView(model.ActionForward, ViewCallbackForward(-1001))

	return b, api
}

func TestExtractContent(t *testing.T) {
	assert.Equal(t, "🟢 BTC: $60000 (+2%)\n⚪ ETH: $3000", ExtractContent("💰 Криптовалюты:\n\n🟢 BTC: $60000 (+2%)\n ⚪ ETH: $3000 \n"))
	assert.Equal(t, "a &lt;b&gt; &amp; c", ExtractContent("a <b> & c"))
	assert.Equal(t, "Итоги:", ExtractContent("Итоги:"))
	assert.Equal(t, "", ExtractContent(" \n "))
}

func TestMergeCallback(t *testing.T) {
	sub := &submitRecorder{}
	b, api := newTestBot(sub)

	b.handleUpdate(context.Background(), callback("merge:crypto", "💰 Криптовалюты:\n🟢 BTC: $60000"))

	assert.Equal(t, model.CategoryCrypto, sub.category)
	assert.Equal(t, "🟢 BTC: $60000", sub.content)

	answer := api.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, "Закреп обновлён", answer.Text)
	assert.Equal(t, false, answer.ShowAlert)
}

func TestMergeCallbackFailures(t *testing.T) {
	sub := &submitRecorder{err: errors.New("store down")}
	b, api := newTestBot(sub)

	b.handleUpdate(context.Background(), callback("merge:crypto", "🟢 BTC"))
	answer := api.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, true, answer.ShowAlert)

	b.handleUpdate(context.Background(), callback("merge:bonds", "x"))
	answer = api.requests[1].(tgbotapi.CallbackConfig)
	assert.Equal(t, "Неизвестный тип контента", answer.Text)
}

func TestDeleteAndForwardCallbacks(t *testing.T) {
	b, api := newTestBot(&submitRecorder{})

	b.handleUpdate(context.Background(), callback("delete", "news"))
	del := api.requests[0].(tgbotapi.DeleteMessageConfig)
	assert.Equal(t, int64(42), del.ChatID)
	assert.Equal(t, 77, del.MessageID)

	b.handleUpdate(context.Background(), callback("forward", "news"))
	cp := api.requests[2].(tgbotapi.CopyMessageConfig)
	assert.Equal(t, int64(-1001), cp.ChatID)
	assert.Equal(t, int64(42), cp.FromChatID)
	assert.Equal(t, 77, cp.MessageID)
}

func TestCallbackViewLongestPrefix(t *testing.T) {
	b, _ := newTestBot(&submitRecorder{})

	_, ok := b.callbackView("merge:news")
	assert.Equal(t, true, ok)

	_, ok = b.callbackView("unknown")
	assert.Equal(t, false, ok)
}

func TestCommands(t *testing.T) {
	b, api := newTestBot(&submitRecorder{})

	b.handleUpdate(context.Background(), command("digest"))
	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "ℹ️ preview", msg.Text)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)

	b.handleUpdate(context.Background(), command("nope"))
	assert.Equal(t, 1, len(api.sent))
}

func TestPanicInViewRecovered(t *testing.T) {
	b, _ := newTestBot(&submitRecorder{})
	b.RegisterCmdView("boom", func(context.Context, BotAPI, tgbotapi.Update) error {
		panic("boom")
	})

	b.handleUpdate(context.Background(), command("boom"))
}

func TestRunStopsOnCancel(t *testing.T) {
	b, api := newTestBot(&submitRecorder{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	api.updates <- command("start")
	cancel()

	select {
	case err := <-done:
		assert.Equal(t, true, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Equal(t, 1, len(api.sent))
}
