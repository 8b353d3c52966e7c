package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// Publish serializes the event into a versioned envelope and hands it to the
// async producer. The call blocks only when the producer's input buffer is
// full, in which case ctx cancellation wins.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	eventID, userID, ts, payload := describe(event)

	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   eventID,
		EventType: event.EventName(),
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(event.EventName()),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// describe maps a domain event onto its envelope identity and wire payload.
func describe(event domain.Event) (eventID, userID string, ts time.Time, payload any) {
	switch ev := event.(type) {
	case domain.UserRegisteredEvent:
		return ev.EventID, ev.UserID, ev.RegisteredAt, struct {
			UserID       string    `json:"user_id"`
			Email        string    `json:"email"`
			FullName     string    `json:"full_name"`
			Method       string    `json:"method"`
			RegisteredAt time.Time `json:"registered_at"`
		}{ev.UserID, ev.Email, ev.FullName, ev.Method, ev.RegisteredAt.UTC()}

	case domain.UserLoggedInEvent:
		return ev.EventID, ev.UserID, ev.LoggedAt, struct {
			UserID   string    `json:"user_id"`
			Method   string    `json:"method"`
			IP       *string   `json:"ip,omitempty"`
			LoggedAt time.Time `json:"logged_at"`
		}{ev.UserID, ev.Method, ev.IP, ev.LoggedAt.UTC()}

	case domain.RolesAssignedEvent:
		return ev.EventID, ev.UserID, ev.AssignedAt, struct {
			UserID     string    `json:"user_id"`
			RoleID     string    `json:"role_id"`
			RoleName   string    `json:"role_name"`
			AssignedBy string    `json:"assigned_by"`
			AssignedAt time.Time `json:"assigned_at"`
		}{ev.UserID, ev.RoleID, ev.RoleName, ev.AssignedBy, ev.AssignedAt.UTC()}

	case domain.RolesRevokedEvent:
		return ev.EventID, ev.UserID, ev.RevokedAt, struct {
			UserID    string    `json:"user_id"`
			RoleID    string    `json:"role_id"`
			RoleName  string    `json:"role_name"`
			RevokedBy string    `json:"revoked_by"`
			RevokedAt time.Time `json:"revoked_at"`
		}{ev.UserID, ev.RoleID, ev.RoleName, ev.RevokedBy, ev.RevokedAt.UTC()}

	case domain.PermissionsChangedEvent:
		var userID string
		if ev.UserID != nil {
			userID = *ev.UserID
		}
		return ev.EventID, userID, ev.ChangedAt, struct {
			RoleID    *string   `json:"role_id,omitempty"`
			UserID    *string   `json:"user_id,omitempty"`
			ChangedBy string    `json:"changed_by"`
			ChangedAt time.Time `json:"changed_at"`
		}{ev.RoleID, ev.UserID, ev.ChangedBy, ev.ChangedAt.UTC()}

	case domain.SessionsRevokedEvent:
		return ev.EventID, ev.UserID, ev.RevokedAt, struct {
			UserID        string    `json:"user_id"`
			TokensRevoked int       `json:"tokens_revoked"`
			Reason        string    `json:"reason"`
			RevokedAt     time.Time `json:"revoked_at"`
		}{ev.UserID, ev.TokensRevoked, ev.Reason, ev.RevokedAt.UTC()}

	case domain.TokenReuseDetectedEvent:
		return ev.EventID, ev.UserID, ev.DetectedAt, struct {
			UserID        string    `json:"user_id"`
			TokensRevoked int       `json:"tokens_revoked"`
			IP            *string   `json:"ip,omitempty"`
			DetectedAt    time.Time `json:"detected_at"`
		}{ev.UserID, ev.TokensRevoked, ev.IP, ev.DetectedAt.UTC()}

	case domain.PasswordChangedEvent:
		return ev.EventID, ev.UserID, ev.ChangedAt, struct {
			UserID          string    `json:"user_id"`
			SessionsRevoked int       `json:"sessions_revoked"`
			ChangedAt       time.Time `json:"changed_at"`
		}{ev.UserID, ev.SessionsRevoked, ev.ChangedAt.UTC()}

	case domain.OAuthLinkedEvent:
		return ev.EventID, ev.UserID, ev.LinkedAt, struct {
			UserID   string    `json:"user_id"`
			Provider string    `json:"provider"`
			LinkedAt time.Time `json:"linked_at"`
		}{ev.UserID, string(ev.Provider), ev.LinkedAt.UTC()}

	case domain.OAuthUnlinkedEvent:
		return ev.EventID, ev.UserID, ev.UnlinkedAt, struct {
			UserID     string    `json:"user_id"`
			Provider   string    `json:"provider"`
			UnlinkedAt time.Time `json:"unlinked_at"`
		}{ev.UserID, string(ev.Provider), ev.UnlinkedAt.UTC()}

	default:
		return "", "", time.Time{}, event
	}
}

var _ port.EventPublisher = (*EventPublisher)(nil)
