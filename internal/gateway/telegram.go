package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/config"
	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram talks to the Bot API with a plain HTTP client. Sends use the
// configured request timeout; the receive loop long-polls getUpdates with its
// own, longer deadline.
type Telegram struct {
	apiBase     string
	token       string
	client      *http.Client
	pollSeconds int
	retryDelay  time.Duration
	logger      *zap.Logger
}

// NewTelegram constructs the adapter.
func NewTelegram(cfg config.GatewayConfig, logger *zap.Logger) *Telegram {
	return &Telegram{
		apiBase: defaultAPIBase,
		token:   cfg.BotToken,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		pollSeconds: cfg.PollSeconds,
		retryDelay:  3 * time.Second,
		logger:      logger,
	}
}

// NewTelegramWithBase overrides the API base URL. Used by tests.
func NewTelegramWithBase(base, token string, logger *zap.Logger) *Telegram {
	return &Telegram{
		apiBase:     base,
		token:       token,
		client:      &http.Client{Timeout: 10 * time.Second},
		pollSeconds: 1,
		retryDelay:  50 * time.Millisecond,
		logger:      logger,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		Date      int64 `json:"date"`
		Text      string `json:"text"`
		Caption   string `json:"caption"`
		Chat      struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"chat"`
		From *struct {
			IsBot     bool   `json:"is_bot"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Photo    json.RawMessage `json:"photo"`
		Document json.RawMessage `json:"document"`
		Voice    json.RawMessage `json:"voice"`
		Video    json.RawMessage `json:"video"`
		Sticker  json.RawMessage `json:"sticker"`
	} `json:"message"`
}

// Send renders the payload as a sendMessage or copyMessage call.
func (t *Telegram) Send(ctx context.Context, payload domain.Payload) error {
	switch payload.Kind {
	case domain.PayloadCopy:
		body := map[string]any{
			"chat_id":      payload.ChatID,
			"from_chat_id": payload.FromChatID,
			"message_id":   payload.MessageID,
		}
		if payload.ThreadID != 0 {
			body["message_thread_id"] = payload.ThreadID
		}
		_, err := t.call(ctx, "copyMessage", body)
		return err
	default:
		body := map[string]any{
			"chat_id": payload.ChatID,
			"text":    payload.Text,
		}
		if payload.ThreadID != 0 {
			body["message_thread_id"] = payload.ThreadID
		}
		_, err := t.call(ctx, "sendMessage", body)
		return err
	}
}

// ReceiveLoop long-polls getUpdates until ctx is done. Poll errors back off
// briefly and polling resumes. An update is acknowledged, by advancing the
// poll offset past it, only after its handler returns nil: a message the
// store refused is re-fetched on the next poll instead of being dropped.
func (t *Telegram) ReceiveLoop(ctx context.Context, handler InboundHandler) error {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("getUpdates failed", zap.Error(err))
			if err := t.pause(ctx); err != nil {
				return err
			}
			continue
		}

		stalled := false
		for _, u := range updates {
			msg := u.Message
			if msg == nil || msg.Chat.Type != "private" || msg.From == nil || msg.From.IsBot {
				offset = u.UpdateID + 1
				continue
			}
			inbound := InboundMessage{
				ChatID:    msg.Chat.ID,
				MessageID: msg.MessageID,
				Username:  msg.From.Username,
				FirstName: msg.From.FirstName,
				LastName:  msg.From.LastName,
				Kind:      messageKind(u),
				Preview:   messagePreview(u),
				ArrivedAt: time.Unix(msg.Date, 0),
			}
			if err := handler(ctx, inbound); err != nil {
				t.logger.Error("inbound handler failed, update will be redelivered",
					zap.Int64("chat_id", inbound.ChatID),
					zap.Int64("update_id", u.UpdateID), zap.Error(err))
				stalled = true
				break
			}
			offset = u.UpdateID + 1
		}
		if stalled {
			if err := t.pause(ctx); err != nil {
				return err
			}
		}
	}
}

func (t *Telegram) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.retryDelay):
		return nil
	}
}

func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         t.pollSeconds,
		"allowed_updates": []string{"message"},
	}

	// long poll needs a deadline beyond the poll window
	pollCtx, cancel := context.WithTimeout(ctx, time.Duration(t.pollSeconds+10)*time.Second)
	defer cancel()

	raw, err := t.callWithClient(pollCtx, &http.Client{}, "getUpdates", body)
	if err != nil {
		return nil, err
	}
	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func (t *Telegram) call(ctx context.Context, method string, body map[string]any) (json.RawMessage, error) {
	return t.callWithClient(ctx, t.client, method, body)
}

func (t *Telegram) callWithClient(ctx context.Context, client *http.Client, method string, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, util.NewSendPermanent(err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, util.NewSendPermanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, util.NewSendTransient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, util.NewSendTransient(err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return nil, util.NewSendTransient(fmt.Errorf("decode response: %w", err))
	}
	if api.OK {
		return api.Result, nil
	}

	apiErr := fmt.Errorf("%s: %d %s", method, api.ErrorCode, api.Description)
	if permanentCode(api.ErrorCode) {
		return nil, util.NewSendPermanent(apiErr)
	}
	return nil, util.NewSendTransient(apiErr)
}

// permanentCode classifies Bot API errors. Bad requests and blocked or
// vanished recipients never succeed on retry; rate limits and server errors
// do.
func permanentCode(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

func messageKind(u update) string {
	msg := u.Message
	switch {
	case msg.Photo != nil:
		return "photo"
	case msg.Document != nil:
		return "document"
	case msg.Voice != nil:
		return "voice"
	case msg.Video != nil:
		return "video"
	case msg.Sticker != nil:
		return "sticker"
	default:
		return "text"
	}
}

func messagePreview(u update) string {
	msg := u.Message
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		text = "[" + messageKind(u) + "]"
	}
	// cap at 100 characters, never mid-rune
	if runes := []rune(text); len(runes) > 100 {
		text = string(runes[:100])
	}
	return text
}
