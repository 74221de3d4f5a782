package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nextslot/internal/batch"
	"nextslot/internal/metrics"
	"nextslot/internal/models"
	"nextslot/internal/notify"
)

// Tier classifies how close an appointment is when its reminder goes out.
type Tier string

const (
	Tier24H Tier = "24h"
	Tier2H  Tier = "2h"
)

// TierFor buckets an appointment by hours until start. Returns due=false
// for appointments outside the reminder window; a later pass picks them up.
func TierFor(now, start time.Time) (Tier, bool) {
	hoursUntil := start.Sub(now).Hours()
	switch {
	case hoursUntil <= 0:
		return "", false
	case hoursUntil <= 3:
		return Tier2H, true
	case hoursUntil <= 25:
		return Tier24H, true
	default:
		return "", false
	}
}

// Store is the persistence surface the reminder sweeper needs.
type Store interface {
	// ConfirmedAppointmentsBetween returns confirmed appointments with
	// start inside (from, to].
	ConfirmedAppointmentsBetween(ctx context.Context, from, to time.Time) ([]models.Appointment, error)

	// AppendReminderSent appends a timestamp to the appointment's
	// reminder ledger.
	AppendReminderSent(ctx context.Context, appointmentID string, at time.Time) error
}

// Config holds configuration for the reminder sweeper.
type Config struct {
	// Interval is how often the sweep runs. Default: 1 hour.
	Interval time.Duration
	// Window is how far ahead to scan. Default: 25 hours, one hour of
	// buffer past the 24h tier so no appointment slips between passes.
	Window time.Duration
	// RunTimeout bounds one full sweep. Default: 300 seconds.
	RunTimeout time.Duration
	// BatchLimit caps concurrent items in flight. Default: 10.
	BatchLimit int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:   time.Hour,
		Window:     25 * time.Hour,
		RunTimeout: 300 * time.Second,
		BatchLimit: batch.DefaultLimit,
	}
}

// Sweeper scans upcoming confirmed appointments and sends at most one
// reminder per appointment, ever. The append-only ledger on the
// appointment is the sole dedup mechanism.
type Sweeper struct {
	config Config
	store  Store
	router *notify.Router
	logger *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper builds a reminder sweeper delivering through the router's
// channels.
func NewSweeper(config Config, store Store, router *notify.Router, logger *zerolog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Window <= 0 {
		config.Window = 25 * time.Hour
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 300 * time.Second
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = batch.DefaultLimit
	}
	return &Sweeper{
		config: config,
		store:  store,
		router: router,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("window", s.config.Window).
		Msg("reminder sweeper started")
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("reminder sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	stats, err := s.Run(runCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reminder sweep failed")
		return
	}
	s.logger.Info().Object("stats", stats).Msg("reminder sweep finished")
}

// Run executes one sweep pass and returns its stats. Also the entry point
// for the manual admin trigger.
func (s *Sweeper) Run(ctx context.Context) (*batch.Stats, error) {
	stats := batch.NewStats()
	metrics.IncSweepRun("reminders")
	defer func() {
		metrics.ObserveSweepDuration("reminders", stats.Duration().Seconds())
	}()

	now := time.Now()
	appointments, err := s.store.ConfirmedAppointmentsBetween(ctx, now, now.Add(s.config.Window))
	if err != nil {
		return stats, fmt.Errorf("load upcoming appointments: %w", err)
	}
	stats.AddStoreReads(1)

	if len(appointments) == 0 {
		return stats, nil
	}

	batch.ForEachLimit(ctx, appointments, s.config.BatchLimit,
		func(ctx context.Context, appt models.Appointment) error {
			return s.process(ctx, appt, stats)
		},
		func(appt models.Appointment, err error) {
			stats.IncErrored()
			s.logger.Error().Err(err).
				Str("appointment_id", appt.ID).
				Str("client", appt.ClientContact.Name).
				Msg("reminder item failed")
		},
	)

	return stats, nil
}

func (s *Sweeper) process(ctx context.Context, appt models.Appointment, stats *batch.Stats) error {
	stats.IncProcessed()

	// One reminder per appointment, ever. Any prior ledger entry means
	// skip, regardless of tier.
	if appt.ReminderSent() {
		stats.IncSkipped()
		return nil
	}

	tier, due := TierFor(time.Now(), appt.Start)
	if !due {
		stats.IncSkipped()
		return nil
	}

	// Both channels are attempted independently inside Deliver. The
	// ledger append below happens even when every channel failed: a
	// fully-failed reminder is preferable to retrying it on every pass
	// forever.
	s.router.Deliver(ctx, notify.Delivery{
		Recipient:   notify.Recipient{Kind: notify.RecipientClient, ID: appt.ClientID},
		Event:       models.EventReminder,
		Appointment: &appt,
	})

	if err := s.store.AppendReminderSent(ctx, appt.ID, time.Now()); err != nil {
		return fmt.Errorf("append reminder ledger: %w", err)
	}
	stats.AddStoreWrites(1)
	stats.IncUpdated()
	metrics.IncReminderSent(string(tier))

	s.logger.Debug().
		Str("appointment_id", appt.ID).
		Str("tier", string(tier)).
		Msg("reminder sent")
	return nil
}
