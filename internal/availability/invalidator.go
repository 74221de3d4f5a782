package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nextslot/internal/events"
	"nextslot/internal/metrics"
)

// Invalidator is the event-triggered recomputation path. It reacts to
// appointment writes, decides whether the cached next-available date could
// have moved, and rewrites it. Failures are logged and dropped: the
// staleness sweeper repairs anything this path misses.
type Invalidator struct {
	store  Store
	calc   *Calculator
	logger *zerolog.Logger

	// opTimeout bounds one recomputation.
	opTimeout time.Duration
}

// NewInvalidator builds an invalidator over the shared store and calculator.
func NewInvalidator(store Store, calc *Calculator, logger *zerolog.Logger) *Invalidator {
	return &Invalidator{
		store:     store,
		calc:      calc,
		logger:    logger,
		opTimeout: 30 * time.Second,
	}
}

// Handle is the bus subscription target for appointment events.
func (inv *Invalidator) Handle(event events.AppointmentEvent) {
	if !inv.shouldRecompute(event) {
		inv.logger.Debug().
			Str("provider_id", event.ProviderID()).
			Msg("appointment update does not affect availability, skipping recompute")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inv.opTimeout)
	defer cancel()

	if err := inv.Recompute(ctx, event.ProviderID()); err != nil {
		// Best-effort path: log and drop, the sweeper will converge.
		inv.logger.Error().Err(err).
			Str("provider_id", event.ProviderID()).
			Str("event_kind", string(event.Kind)).
			Msg("availability recompute failed")
		metrics.IncRecomputeError("invalidator")
		return
	}
	metrics.IncRecompute("invalidator")
}

// shouldRecompute applies the cost-saving short-circuit: an update that
// changed neither status nor start cannot move the cached date. Creates
// and deletes always recompute, there is no prior value to diff against.
func (inv *Invalidator) shouldRecompute(event events.AppointmentEvent) bool {
	if event.Kind != events.KindUpdated {
		return true
	}
	if event.Before == nil || event.After == nil {
		return true
	}
	return event.Before.Status != event.After.Status ||
		!event.Before.Start.Equal(event.After.Start)
}

// Recompute runs the calculator for the provider's default member and
// overwrites the cached field. Recomputation is idempotent, so duplicate
// deliveries of the same event are harmless.
func (inv *Invalidator) Recompute(ctx context.Context, providerID string) error {
	member, err := inv.store.DefaultMember(ctx, providerID)
	if err != nil {
		return fmt.Errorf("resolve default member: %w", err)
	}
	if member == nil {
		// No active member means no availability, not an error.
		if err := inv.store.SetNextAvailable(ctx, providerID, nil, time.Now()); err != nil {
			return fmt.Errorf("clear cached slot: %w", err)
		}
		return nil
	}

	now := time.Now()
	next, err := inv.calc.NextAvailable(ctx, member.ID, now)
	if err != nil {
		return fmt.Errorf("compute next available: %w", err)
	}

	if err := inv.store.SetNextAvailable(ctx, providerID, next, now); err != nil {
		return fmt.Errorf("write cached slot: %w", err)
	}

	inv.logger.Debug().
		Str("provider_id", providerID).
		Interface("next_available", next).
		Msg("cached next-available slot refreshed")
	return nil
}
