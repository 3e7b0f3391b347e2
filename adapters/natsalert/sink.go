package natsalert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-invites/core"
	"github.com/nats-io/nats.go"
)

const DefaultSubject = "invites.alerts.claim_partial_failure"

// Publisher is the slice of *nats.Conn the sink needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

type Payload struct {
	Kind             string    `json:"kind"`
	TokenID          string    `json:"token_id"`
	TargetResourceID string    `json:"target_resource_id"`
	Identity         string    `json:"identity"`
	ProfileID        string    `json:"profile_id,omitempty"`
	Reason           string    `json:"reason"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Sink publishes claim alerts as JSON on a NATS subject. Each message carries
// a Nats-Msg-Id derived from the token so a JetStream stream drops repeats.
type Sink struct {
	publisher Publisher
	subject   string
	conn      *nats.Conn
}

func NewSink(publisher Publisher, subject string) (*Sink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("natsalert: publisher is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sink{publisher: publisher, subject: subject}, nil
}

// Connect dials url and returns a sink that owns the connection.
func Connect(url string, subject string, opts ...nats.Option) (*Sink, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsalert: connect: %w", err)
	}
	sink, err := NewSink(conn, subject)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sink.conn = conn
	return sink, nil
}

func (s *Sink) Subject() string {
	if s == nil {
		return ""
	}
	return s.subject
}

func (s *Sink) ClaimPartialFailure(ctx context.Context, alert core.ClaimAlert) error {
	if s == nil || s.publisher == nil {
		return fmt.Errorf("natsalert: sink is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	occurredAt := alert.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(Payload{
		Kind:             "claim_partial_failure",
		TokenID:          alert.TokenID,
		TargetResourceID: alert.TargetResourceID,
		Identity:         alert.Identity,
		ProfileID:        alert.ProfileID,
		Reason:           alert.Reason,
		OccurredAt:       occurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("natsalert: encode alert: %w", err)
	}
	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, "claim-partial-failure:"+strings.TrimSpace(alert.TokenID))
	if err := s.publisher.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsalert: publish: %w", err)
	}
	return nil
}

// Close drains the connection when the sink dialed it itself.
func (s *Sink) Close() {
	if s == nil || s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
}

var _ core.AlertSink = (*Sink)(nil)
