package slack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/answerbot-ai/answerbot/internal/admission"
	"github.com/answerbot-ai/answerbot/internal/queue"
)

// maxEventBody caps the request body read from Slack. Event payloads are
// small; anything larger is hostile.
const maxEventBody = 1 << 20

// mentionPattern strips the leading bot mention from message text.
var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// Admitter decides whether a question is accepted. admission.Controller
// satisfies it.
type Admitter interface {
	Admit(ctx context.Context, userID string, now time.Time) (admission.Decision, error)
}

// Enqueuer hands admitted questions to the work queue. queue.Queue
// satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// Poster delivers chat messages. Client satisfies it.
type Poster interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) error
}

// eventEnvelope is the outer Events API payload.
type eventEnvelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// mentionEvent is the app_mention inner event, plus the fields used to
// filter out the bot's own messages and attachments.
type mentionEvent struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	BotID    string `json:"bot_id,omitempty"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Channel  string `json:"channel"`
	Files    []struct {
		ID string `json:"id"`
	} `json:"files,omitempty"`
}

// EventsHandler serves the Slack Events API webhook. It verifies
// signatures, triages mentions, runs admission, and enqueues accepted
// questions. Answer generation never happens on this path.
type EventsHandler struct {
	signingSecret string
	admitter      Admitter
	enqueuer      Enqueuer
	poster        Poster
	logger        *slog.Logger
	now           func() time.Time
}

// NewEventsHandler creates the webhook handler.
func NewEventsHandler(signingSecret string, admitter Admitter, enqueuer Enqueuer, poster Poster, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		signingSecret: signingSecret,
		admitter:      admitter,
		enqueuer:      enqueuer,
		poster:        poster,
		logger:        logger,
		now:           time.Now,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if err := VerifySignature(
		h.signingSecret,
		r.Header.Get("X-Slack-Request-Timestamp"),
		r.Header.Get("X-Slack-Signature"),
		body,
		h.now(),
	); err != nil {
		h.logger.Warn("rejected unsigned event", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(envelope.Challenge))

	case "event_callback":
		h.handleEventCallback(r.Context(), envelope.Event)
		w.WriteHeader(http.StatusOK)

	default:
		// Unknown envelope types are acknowledged and ignored so Slack
		// does not retry them.
		w.WriteHeader(http.StatusOK)
	}
}

func (h *EventsHandler) handleEventCallback(ctx context.Context, raw json.RawMessage) {
	var event mentionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.logger.Warn("undecodable inner event", "error", err)
		return
	}
	if event.Type != "app_mention" {
		return
	}
	// Never react to bot messages, including our own.
	if event.BotID != "" {
		return
	}

	// Replies always land in the mention's thread.
	threadTS := event.ThreadTS
	if threadTS == "" {
		threadTS = event.TS
	}

	if len(event.Files) > 0 {
		h.reply(ctx, event.Channel, threadTS, MsgFileRejection)
		return
	}

	question := strings.TrimSpace(mentionPattern.ReplaceAllString(event.Text, ""))
	if question == "" {
		h.reply(ctx, event.Channel, threadTS, MsgGreeting)
		return
	}

	decision, err := h.admitter.Admit(ctx, event.User, h.now())
	if err != nil && !decision.Admitted {
		h.reply(ctx, event.Channel, threadTS, MsgApology)
		return
	}
	if !decision.Admitted {
		h.reply(ctx, event.Channel, threadTS, MsgQuotaExceeded(decision.Limit))
		return
	}

	job := queue.Job{
		UserID:    event.User,
		Question:  question,
		ThreadID:  threadTS,
		ChannelID: event.Channel,
	}
	if err := h.enqueuer.Enqueue(ctx, job); err != nil {
		h.logger.Error("enqueue failed", "user", event.User, "error", err)
		h.reply(ctx, event.Channel, threadTS, MsgApology)
		return
	}

	h.reply(ctx, event.Channel, threadTS, MsgAck)
}

func (h *EventsHandler) reply(ctx context.Context, channel, threadTS, text string) {
	if err := h.poster.PostMessage(ctx, channel, threadTS, text); err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Error("reply failed", "channel", channel, "error", err)
		}
	}
}
