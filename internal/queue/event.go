// Package queue defines the account events exchanged over RabbitMQ and
// the consumer that turns them into an audit log.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// AccountEventsQueue is the durable queue every account event goes to.
const AccountEventsQueue = "account.events"

// Event types.
const (
	EventRegistered            = "account.registered"
	EventConfirmationRequested = "account.confirmation_requested"
	EventEmailConfirmed        = "account.email_confirmed"
	EventLoggedIn              = "account.logged_in"
	EventLoggedOut             = "account.logged_out"
	EventForceLogout           = "account.force_logout"
	EventDeleted               = "account.deleted"
	EventStatusChanged         = "account.status_changed"
	EventVerificationChanged   = "account.verification_changed"
	EventProfileUpdated        = "account.profile_updated"
	EventPasswordChanged       = "account.password_changed"
)

// AccountEvent is published after an account mutation commits.  ActorID
// differs from AccountID when an admin acted on someone else.  Secret
// carries values meant for a downstream mailer only (e.g. a
// confirmation verifier) and is never written to the audit log.
type AccountEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	AccountID  uint64            `json:"account_id"`
	ActorID    uint64            `json:"actor_id,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Secret     map[string]string `json:"secret,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewAccountEvent stamps a new event with a random id and the current time.
func NewAccountEvent(typ string, accountID, actorID uint64) AccountEvent {
	return AccountEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		AccountID:  accountID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// With sets one data attribute and returns the event.
func (e AccountEvent) With(key, value string) AccountEvent {
	if e.Data == nil {
		e.Data = map[string]string{}
	}
	e.Data[key] = value
	return e
}
