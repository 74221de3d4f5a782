package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nextslot/internal/events"
	"nextslot/internal/metrics"
	"nextslot/internal/models"
)

// RecipientKind distinguishes the two notification audiences.
type RecipientKind string

const (
	RecipientProvider RecipientKind = "provider"
	RecipientClient   RecipientKind = "client"
)

// Recipient identifies who a delivery is addressed to. For providers the
// ID is the provider id (the owning staff account); for clients it is the
// client id, which may be empty for guest bookings.
type Recipient struct {
	Kind RecipientKind
	ID   string
}

// Delivery is one classified (recipient, event) pair for an appointment.
type Delivery struct {
	Recipient   Recipient
	Event       models.NotificationEvent
	Appointment *models.Appointment
}

// DeliveryRecord is the persisted trace of one channel attempt.
type DeliveryRecord struct {
	ID            string
	AppointmentID string
	RecipientKind string
	RecipientID   string
	Event         string
	Channel       string
	Status        string // "sent", "failed", "suppressed"
	Detail        string
	SentAt        time.Time
}

// Store is the persistence surface the router needs.
type Store interface {
	PushTokens(ctx context.Context, ownerID string) ([]string, error)
	RemovePushTokens(ctx context.Context, ownerID string, tokens []string) error
	GetPreferences(ctx context.Context, ownerID string) (*models.NotificationPreferences, error)
	LogDelivery(ctx context.Context, rec DeliveryRecord) error
}

// Classify maps an appointment write onto zero or more deliveries.
// Deletions produce nothing; unrelated field edits produce nothing.
func Classify(event events.AppointmentEvent) []Delivery {
	var out []Delivery

	switch event.Kind {
	case events.KindCreated:
		after := event.After
		if after == nil || !after.Status.IsOccupying() {
			return nil
		}
		out = append(out, Delivery{
			Recipient:   Recipient{Kind: RecipientProvider, ID: after.ProviderID},
			Event:       models.EventNewBooking,
			Appointment: after,
		})

	case events.KindUpdated:
		before, after := event.Before, event.After
		if before == nil || after == nil {
			return nil
		}

		if before.Status != models.StatusConfirmed && after.Status == models.StatusConfirmed {
			out = append(out, Delivery{
				Recipient:   Recipient{Kind: RecipientClient, ID: after.ClientID},
				Event:       models.EventConfirmed,
				Appointment: after,
			})
		}

		if before.Status != models.StatusCancelled && after.Status == models.StatusCancelled {
			switch after.CancelledBy {
			case models.CancelledByClient:
				out = append(out, Delivery{
					Recipient:   Recipient{Kind: RecipientProvider, ID: after.ProviderID},
					Event:       models.EventCancelledByClient,
					Appointment: after,
				})
			case models.CancelledByProvider:
				out = append(out, Delivery{
					Recipient:   Recipient{Kind: RecipientClient, ID: after.ClientID},
					Event:       models.EventCancelledByProvider,
					Appointment: after,
				})
			}
		}

		if after.Status.IsOccupying() && !before.Start.Equal(after.Start) {
			out = append(out, Delivery{
				Recipient:   Recipient{Kind: RecipientClient, ID: after.ClientID},
				Event:       models.EventRescheduled,
				Appointment: after,
			})
		}
	}

	return out
}

// Router turns appointment lifecycle transitions into channel deliveries.
type Router struct {
	store     Store
	pusher    Pusher
	emailer   Emailer
	logger    *zerolog.Logger
	opTimeout time.Duration
}

// NewRouter builds a router over the given channels.
func NewRouter(store Store, pusher Pusher, emailer Emailer, logger *zerolog.Logger) *Router {
	return &Router{
		store:     store,
		pusher:    pusher,
		emailer:   emailer,
		logger:    logger,
		opTimeout: 30 * time.Second,
	}
}

// Handle is the bus subscription target for appointment events.
func (r *Router) Handle(event events.AppointmentEvent) {
	deliveries := Classify(event)
	if len(deliveries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	for _, d := range deliveries {
		r.Deliver(ctx, d)
	}
}

// Deliver attempts both channels for one classified delivery. The push
// and email channels are independent: a failure in one never blocks the
// other.
func (r *Router) Deliver(ctx context.Context, d Delivery) {
	r.deliverPush(ctx, d)
	r.deliverEmail(ctx, d)
}

func (r *Router) deliverPush(ctx context.Context, d Delivery) {
	if d.Recipient.ID == "" {
		// Guest booking with no account: no tokens to resolve.
		return
	}

	tokens, err := r.store.PushTokens(ctx, d.Recipient.ID)
	if err != nil {
		r.logger.Error().Err(err).
			Str("recipient", d.Recipient.ID).
			Msg("push token lookup failed")
		return
	}
	if len(tokens) == 0 {
		return
	}

	prefs, prefErr := r.store.GetPreferences(ctx, d.Recipient.ID)
	decision := ResolvePolicy(prefs, prefErr, d.Event)
	if !decision.ShouldSend() {
		r.record(ctx, d, "push", "suppressed", decision.String())
		return
	}
	if decision == FailOpen {
		r.logger.Warn().Err(prefErr).
			Str("recipient", d.Recipient.ID).
			Msg("preference check failed, sending anyway")
	}

	title, body := RenderMessage(d.Event, d.Appointment)
	result, err := r.pusher.SendPush(ctx, tokens, PushMessage{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"event":          string(d.Event),
			"appointment_id": d.Appointment.ID,
		},
	})
	if err != nil {
		metrics.IncNotificationError("push")
		r.record(ctx, d, "push", "failed", err.Error())
		r.logger.Error().Err(err).
			Str("recipient", d.Recipient.ID).
			Str("event", string(d.Event)).
			Msg("push delivery failed")
		return
	}

	if len(result.InvalidTokens) > 0 {
		if err := r.store.RemovePushTokens(ctx, d.Recipient.ID, result.InvalidTokens); err != nil {
			r.logger.Error().Err(err).
				Str("recipient", d.Recipient.ID).
				Msg("failed to prune invalid push tokens")
		} else {
			metrics.IncTokensPruned(len(result.InvalidTokens))
		}
	}

	detail := fmt.Sprintf("sent=%d failed=%d", result.SentCount, result.FailedCount)
	if result.SentCount == 0 {
		// Every token failed without a transport error. Still a failed
		// delivery as far as the log and metrics are concerned.
		metrics.IncNotificationError("push")
		r.record(ctx, d, "push", "failed", detail)
		return
	}
	metrics.IncNotificationSent("push", string(d.Event))
	r.record(ctx, d, "push", "sent", detail)
}

// deliverEmail attempts the email channel for client recipients. Email is
// not gated by the per-event preference toggles the push channel checks;
// the shipped product has the same asymmetry and changing it here would
// change observable behavior.
func (r *Router) deliverEmail(ctx context.Context, d Delivery) {
	if d.Recipient.Kind != RecipientClient {
		return
	}
	addr := d.Appointment.ClientContact.Email
	if !ValidEmail(addr) {
		return
	}

	subject, text := RenderEmail(d.Event, d.Appointment)
	if err := r.emailer.SendEmail(ctx, addr, subject, text); err != nil {
		metrics.IncNotificationError("email")
		r.record(ctx, d, "email", "failed", err.Error())
		r.logger.Error().Err(err).
			Str("event", string(d.Event)).
			Msg("email delivery failed")
		return
	}

	metrics.IncNotificationSent("email", string(d.Event))
	r.record(ctx, d, "email", "sent", "")
}

func (r *Router) record(ctx context.Context, d Delivery, channel, status, detail string) {
	rec := DeliveryRecord{
		ID:            uuid.NewString(),
		AppointmentID: d.Appointment.ID,
		RecipientKind: string(d.Recipient.Kind),
		RecipientID:   d.Recipient.ID,
		Event:         string(d.Event),
		Channel:       channel,
		Status:        status,
		Detail:        detail,
		SentAt:        time.Now(),
	}
	if err := r.store.LogDelivery(ctx, rec); err != nil {
		r.logger.Error().Err(err).Msg("failed to log delivery")
	}
}
