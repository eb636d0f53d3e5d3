package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renewd/internal/event"
	logx "renewd/pkg/logx"
)

func newTestService() *Service {
	return New(Config{}, logx.Nop())
}

func outcomeFor(t *testing.T, outcomes []Outcome, ch ChannelType) Outcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Channel == ch {
			return o
		}
	}
	t.Fatalf("no outcome for channel %s", ch)
	return Outcome{}
}

func TestDispatchOnlyWebhookConfigured(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var gotBody atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var p map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		gotBody.Store(p["message"])
	}))
	defer ts.Close()

	s := newTestService()
	outcomes := s.Dispatch(context.Background(), "hello", event.Settings{WebhookURL: ts.URL})

	require.Len(t, outcomes, 4)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "hello", gotBody.Load())

	wh := outcomeFor(t, outcomes, ChannelWebhook)
	assert.False(t, wh.Skipped)
	assert.NoError(t, wh.Err)
	for _, ch := range []ChannelType{ChannelTelegram, ChannelBark, ChannelPushPlus} {
		o := outcomeFor(t, outcomes, ch)
		assert.True(t, o.Skipped, "channel %s should be skipped", ch)
		assert.NoError(t, o.Err)
	}
}

func TestDispatchChannelsIndependent(t *testing.T) {
	t.Parallel()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	var tgCalls atomic.Int32
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tgCalls.Add(1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/botTOKEN/"))
		var p map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "42", p["chat_id"])
	}))
	defer tg.Close()

	s := newTestService()
	s.telegramAPI = tg.URL
	outcomes := s.Dispatch(context.Background(), "msg", event.Settings{
		TelegramBotToken: "TOKEN",
		TelegramChatID:   "42",
		WebhookURL:       failing.URL,
	})

	assert.Equal(t, int32(1), tgCalls.Load())
	assert.NoError(t, outcomeFor(t, outcomes, ChannelTelegram).Err)

	whErr := outcomeFor(t, outcomes, ChannelWebhook).Err
	require.Error(t, whErr)
	assert.Contains(t, whErr.Error(), "provider returned")
}

func TestDispatchFixedOutcomeOrder(t *testing.T) {
	t.Parallel()
	s := newTestService()
	outcomes := s.Dispatch(context.Background(), "msg", event.Settings{})

	want := []ChannelType{ChannelTelegram, ChannelBark, ChannelPushPlus, ChannelWebhook}
	require.Len(t, outcomes, len(want))
	for i, ch := range want {
		assert.Equal(t, ch, outcomes[i].Channel)
		assert.True(t, outcomes[i].Skipped)
	}
}

func TestDispatchEnvFallback(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	s := New(Config{Fallback: event.Settings{WebhookURL: ts.URL}}, logx.Nop())
	outcomes := s.Dispatch(context.Background(), "msg", event.Settings{})

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, outcomeFor(t, outcomes, ChannelWebhook).Skipped)
}

func TestDispatchTelegramErrorHidesURL(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer ts.Close()

	s := newTestService()
	s.telegramAPI = ts.URL
	outcomes := s.Dispatch(context.Background(), "msg", event.Settings{
		TelegramBotToken: "SECRET-TOKEN",
		TelegramChatID:   "42",
	})

	err := outcomeFor(t, outcomes, ChannelTelegram).Err
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}

func TestDispatchBarkEscapesMessage(t *testing.T) {
	t.Parallel()
	var gotPath atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.EscapedPath())
	}))
	defer ts.Close()

	s := newTestService()
	s.barkAPI = ts.URL
	msg := "提醒 a/b?c"
	outcomes := s.Dispatch(context.Background(), msg, event.Settings{BarkKey: "key1"})
	require.NoError(t, outcomeFor(t, outcomes, ChannelBark).Err)

	p, ok := gotPath.Load().(string)
	require.True(t, ok)
	assert.Equal(t, "/key1/"+url.PathEscape(msg), p)
}

func TestDispatchTest(t *testing.T) {
	t.Parallel()

	t.Run("missing credentials reported", func(t *testing.T) {
		s := newTestService()
		err := s.DispatchTest(context.Background(), ChannelTelegram, event.Settings{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.Contains(t, err.Error(), "Telegram")
	})

	t.Run("no fallback on test path", func(t *testing.T) {
		s := New(Config{Fallback: event.Settings{WebhookURL: "http://127.0.0.1:1/unused"}}, logx.Nop())
		err := s.DispatchTest(context.Background(), ChannelWebhook, event.Settings{})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("unknown channel", func(t *testing.T) {
		s := newTestService()
		err := s.DispatchTest(context.Background(), ChannelType("smoke-signal"), event.Settings{})
		assert.True(t, errors.Is(err, ErrUnknownChannel))
	})

	t.Run("pushplus payload", func(t *testing.T) {
		var got atomic.Value
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			got.Store(p)
		}))
		defer ts.Close()

		s := newTestService()
		s.pushPlusAPI = ts.URL
		require.NoError(t, s.DispatchTest(context.Background(), ChannelPushPlus, event.Settings{PushPlusToken: "tok"}))

		p, ok := got.Load().(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "tok", p["token"])
		assert.Equal(t, "测试", p["title"])
		assert.Equal(t, testMessage, p["content"])
	})
}
