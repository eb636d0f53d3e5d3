package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"renewd/internal/event"
)

// Provider endpoints. Overridable so tests can point channels at a local
// httptest server.
const (
	defaultTelegramAPI = "https://api.telegram.org"
	defaultBarkAPI     = "https://api.day.app"
	defaultPushPlusAPI = "http://www.pushplus.plus/send"
)

// send is the one HTTP primitive all channels go through.
// The channel name (not the URL) is used in errors: Telegram URLs embed
// the bot token and must never appear in logs or API responses.
func (s *Service) send(ctx context.Context, ch ChannelType, method, target string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", ch, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", ch, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", ch, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: provider returned %s", ch, resp.Status)
	}
	return nil
}

func (s *Service) sendTelegram(ctx context.Context, st event.Settings, msg string) error {
	target := fmt.Sprintf("%s/bot%s/sendMessage", s.telegramAPI, st.TelegramBotToken)
	return s.send(ctx, ChannelTelegram, http.MethodPost, target, map[string]string{
		"chat_id": st.TelegramChatID,
		"text":    msg,
	})
}

func (s *Service) sendBark(ctx context.Context, st event.Settings, msg string) error {
	target := fmt.Sprintf("%s/%s/%s", s.barkAPI, st.BarkKey, url.PathEscape(msg))
	return s.send(ctx, ChannelBark, http.MethodGet, target, nil)
}

func (s *Service) sendPushPlus(ctx context.Context, st event.Settings, title, msg string) error {
	return s.send(ctx, ChannelPushPlus, http.MethodPost, s.pushPlusAPI, map[string]string{
		"token":   st.PushPlusToken,
		"title":   title,
		"content": msg,
	})
}

func (s *Service) sendWebhook(ctx context.Context, st event.Settings, msg string) error {
	return s.send(ctx, ChannelWebhook, http.MethodPost, st.WebhookURL, map[string]string{
		"message": msg,
	})
}

func telegramConfigured(st event.Settings) bool {
	return st.TelegramBotToken != "" && st.TelegramChatID != ""
}
