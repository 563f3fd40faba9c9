package line

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"notifyd/internal/pkg/logger"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// Audio messages need a duration; the payload does not carry one, so a flat
// default is used.
const audioDefaultDurationMS = 60000

// notificationPayload is the subset of the caller's payload blob the LINE
// sink understands. Unknown fields are ignored; the engine itself never
// parses the payload.
type notificationPayload struct {
	To       string `json:"to"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	AudioRef string `json:"audio_ref"`
}

// Sink delivers fired notifications as LINE push messages.
type Sink struct {
	client    *Client
	defaultTo string
	log       logger.Logger
}

// NewSink creates a LINE-backed notification sink. NOTIFYD_SINK_TO is the
// fallback recipient for payloads that carry no "to" field.
func NewSink(client *Client, log logger.Logger) *Sink {
	return &Sink{
		client:    client,
		defaultTo: os.Getenv("NOTIFYD_SINK_TO"),
		log:       log,
	}
}

// Deliver pushes the payload as one or two LINE messages. The caller treats
// this as fire-and-forget; a failure here never affects scheduling state.
func (s *Sink) Deliver(ctx context.Context, payload []byte) error {
	var p notificationPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to decode notification payload: %w", err)
		}
	}

	to := p.To
	if to == "" {
		to = s.defaultTo
	}
	if to == "" {
		return fmt.Errorf("notification payload has no recipient and NOTIFYD_SINK_TO is not set")
	}

	text := p.Title
	if p.Body != "" {
		if text != "" {
			text += "\n"
		}
		text += p.Body
	}
	if text == "" {
		text = "(no content)"
	}

	messages := []linebot.SendingMessage{linebot.NewTextMessage(text)}
	if p.AudioRef != "" {
		messages = append(messages, linebot.NewAudioMessage(p.AudioRef, audioDefaultDurationMS))
	}

	if err := s.client.PushMessages(to, messages...); err != nil {
		return err
	}
	s.log.Debug(fmt.Sprintf("Delivered notification to %s", to))
	return nil
}
