package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nextslot/internal/batch"
	"nextslot/internal/metrics"
	"nextslot/internal/models"
)

// SweeperConfig holds configuration for the staleness sweeper.
type SweeperConfig struct {
	// Interval is how often a sweep runs. Default: 2 hours.
	Interval time.Duration
	// RunTimeout bounds one full sweep. Default: 300 seconds. A run that
	// exceeds it is cut off; per-item writes already committed stay, and
	// the remainder is picked up next interval.
	RunTimeout time.Duration
	// BatchLimit caps concurrent items in flight. Default: 10.
	BatchLimit int
}

// DefaultSweeperConfig returns the production defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   2 * time.Hour,
		RunTimeout: 300 * time.Second,
		BatchLimit: batch.DefaultLimit,
	}
}

// Sweeper is the correctness backstop for the cached next-available slot.
// It periodically finds published providers whose cached value is absent
// or in the past and recomputes them, so the staleness window stays
// bounded even when the event-triggered path is missed entirely.
type Sweeper struct {
	config SweeperConfig
	store  Store
	inv    *Invalidator
	logger *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper builds a sweeper reusing the invalidator's recompute path.
func NewSweeper(config SweeperConfig, store Store, inv *Invalidator, logger *zerolog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Hour
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
		inv:    inv,
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
		Msg("availability sweeper started")
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
	s.logger.Info().Msg("availability sweeper stopped")
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
		s.logger.Error().Err(err).Msg("availability sweep failed")
		return
	}
	s.logger.Info().Object("stats", stats).Msg("availability sweep finished")
}

// Run executes one sweep pass and returns its stats. Also the entry point
// for the manual admin trigger.
func (s *Sweeper) Run(ctx context.Context) (*batch.Stats, error) {
	stats := batch.NewStats()
	metrics.IncSweepRun("availability")
	defer func() {
		metrics.ObserveSweepDuration("availability", stats.Duration().Seconds())
	}()

	providers, err := s.store.ListPublishedProviders(ctx)
	if err != nil {
		return stats, fmt.Errorf("list published providers: %w", err)
	}
	stats.AddStoreReads(1)

	candidates := s.selectStale(providers, time.Now())
	if len(candidates) == 0 {
		return stats, nil
	}

	s.logger.Debug().Int("candidates", len(candidates)).Msg("stale providers selected")

	batch.ForEachLimit(ctx, candidates, s.config.BatchLimit,
		func(ctx context.Context, p models.Provider) error {
			return s.process(ctx, p, stats)
		},
		func(p models.Provider, err error) {
			stats.IncErrored()
			s.logger.Error().Err(err).
				Str("provider_id", p.ID).
				Str("provider_name", p.Name).
				Msg("provider sweep item failed")
		},
	)

	return stats, nil
}

// selectStale picks every published provider whose cached value is absent
// or strictly in the past, deduplicated by id so an overlap between the
// two conditions can never double-process a provider.
func (s *Sweeper) selectStale(providers []models.Provider, now time.Time) []models.Provider {
	today := models.DateOnly(now)
	seen := make(map[string]struct{}, len(providers))
	var stale []models.Provider

	for _, p := range providers {
		if !p.IsPublished {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		if p.NextAvailableSlot != nil && !p.NextAvailableSlot.Before(today) {
			continue
		}
		seen[p.ID] = struct{}{}
		stale = append(stale, p)
	}
	return stale
}

func (s *Sweeper) process(ctx context.Context, p models.Provider, stats *batch.Stats) error {
	stats.IncProcessed()

	// Re-read before recomputing: the invalidator may have healed this
	// provider between selection and processing.
	current, err := s.store.GetProvider(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("reload provider: %w", err)
	}
	stats.AddStoreReads(1)

	today := models.DateOnly(time.Now())
	if current != nil && current.NextAvailableSlot != nil && !current.NextAvailableSlot.Before(today) {
		stats.IncSkipped()
		return nil
	}

	before := p.NextAvailableSlot
	if current != nil {
		before = current.NextAvailableSlot
	}

	if err := s.inv.Recompute(ctx, p.ID); err != nil {
		return err
	}
	stats.AddStoreWrites(1)
	metrics.IncRecompute("sweeper")

	after, err := s.store.GetProvider(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("reload provider after recompute: %w", err)
	}
	stats.AddStoreReads(1)

	if sameSlot(before, slotOf(after)) {
		stats.IncUnchanged()
	} else {
		stats.IncUpdated()
	}
	return nil
}

func slotOf(p *models.Provider) *time.Time {
	if p == nil {
		return nil
	}
	return p.NextAvailableSlot
}

func sameSlot(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
