package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"renewd/internal/event"
	logx "renewd/pkg/logx"
)

// batchTitle is the PushPlus title for scheduled reminder batches.
const batchTitle = "renewd"

// testMessage is the fixed body sent by DispatchTest.
const testMessage = "🔔 renewd 测试消息 / Test Message"

type Service struct {
	log     logx.Logger
	client  *http.Client
	limiter *rate.Limiter

	fallback event.Settings

	telegramAPI string
	barkAPI     string
	pushPlusAPI string
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 4
	}
	return &Service{
		log:         log,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), rps),
		fallback:    cfg.Fallback,
		telegramAPI: defaultTelegramAPI,
		barkAPI:     defaultBarkAPI,
		pushPlusAPI: defaultPushPlusAPI,
	}
}

// resolve fills blank credentials from the process-level fallback,
// mirroring how the stored settings document overrides the environment.
func (s *Service) resolve(st event.Settings) event.Settings {
	if st.TelegramBotToken == "" {
		st.TelegramBotToken = s.fallback.TelegramBotToken
	}
	if st.TelegramChatID == "" {
		st.TelegramChatID = s.fallback.TelegramChatID
	}
	if st.BarkKey == "" {
		st.BarkKey = s.fallback.BarkKey
	}
	if st.PushPlusToken == "" {
		st.PushPlusToken = s.fallback.PushPlusToken
	}
	if st.WebhookURL == "" {
		st.WebhookURL = s.fallback.WebhookURL
	}
	return st
}

// Dispatch sends message to every configured channel independently and
// returns one Outcome per channel, in a fixed order (telegram, bark,
// pushplus, webhook).
//
// Channels run concurrently; all attempts are joined before returning.
// One channel failing or stalling (bounded by the per-attempt timeout)
// never blocks or cancels the others. There are no retries.
func (s *Service) Dispatch(ctx context.Context, message string, st event.Settings) []Outcome {
	st = s.resolve(st)

	attempts := []struct {
		ch         ChannelType
		configured bool
		send       func(context.Context) error
	}{
		{ChannelTelegram, telegramConfigured(st), func(c context.Context) error { return s.sendTelegram(c, st, message) }},
		{ChannelBark, st.BarkKey != "", func(c context.Context) error { return s.sendBark(c, st, message) }},
		{ChannelPushPlus, st.PushPlusToken != "", func(c context.Context) error { return s.sendPushPlus(c, st, batchTitle, message) }},
		{ChannelWebhook, st.WebhookURL != "", func(c context.Context) error { return s.sendWebhook(c, st, message) }},
	}

	outcomes := make([]Outcome, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		outcomes[i] = Outcome{Channel: a.ch, Skipped: !a.configured}
		if !a.configured {
			continue
		}
		wg.Add(1)
		go func(i int, ch ChannelType, send func(context.Context) error) {
			defer wg.Done()
			if err := s.limiter.Wait(ctx); err != nil {
				outcomes[i].Err = fmt.Errorf("%s: %w", ch, err)
				return
			}
			start := time.Now()
			err := send(ctx)
			outcomes[i].Err = err
			if err != nil {
				s.log.Warn("channel send failed", logx.String("channel", string(ch)), logx.Duration("took", time.Since(start)), logx.Err(err))
			} else {
				s.log.Debug("channel send ok", logx.String("channel", string(ch)), logx.Duration("took", time.Since(start)))
			}
		}(i, a.ch, a.send)
	}
	wg.Wait()
	return outcomes
}

// DispatchTest sends one fixed test message to exactly one channel using
// the given settings verbatim (no environment fallback) and returns that
// channel's error, including the missing-credential case. This is the only
// path where per-channel configuration errors reach the user synchronously.
func (s *Service) DispatchTest(ctx context.Context, ch ChannelType, st event.Settings) error {
	switch ch {
	case ChannelTelegram:
		if !telegramConfigured(st) {
			return fmt.Errorf("%s: %w", ch.DisplayName(), ErrNotConfigured)
		}
		return s.sendTelegram(ctx, st, testMessage)
	case ChannelBark:
		if st.BarkKey == "" {
			return fmt.Errorf("%s: %w", ch.DisplayName(), ErrNotConfigured)
		}
		return s.sendBark(ctx, st, testMessage)
	case ChannelPushPlus:
		if st.PushPlusToken == "" {
			return fmt.Errorf("%s: %w", ch.DisplayName(), ErrNotConfigured)
		}
		return s.sendPushPlus(ctx, st, "测试", testMessage)
	case ChannelWebhook:
		if st.WebhookURL == "" {
			return fmt.Errorf("%s: %w", ch.DisplayName(), ErrNotConfigured)
		}
		return s.sendWebhook(ctx, st, testMessage)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, string(ch))
	}
}
