package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"erp-rules/internal/config"
	"erp-rules/internal/instrument"
	"erp-rules/internal/metadata"
	"erp-rules/internal/store"
)

const cleanupInterval = time.Hour

// Scheduler keeps the in-memory registry in step with the catalog and
// prunes old instrumentation events.
type Scheduler struct {
	rules    metadata.RuleSource
	registry *metadata.Registry

	// events is nil when instrumentation is disabled.
	events      *sql.DB
	dialect     store.Dialect
	instrConfig config.InstrumentationConfig

	reloadInterval  time.Duration
	cleanupInterval time.Duration

	reloadTicker  *time.Ticker
	cleanupTicker *time.Ticker
	done          chan struct{}
	wg            sync.WaitGroup
}

func New(rules metadata.RuleSource, reg *metadata.Registry, engineCfg config.EngineConfig) *Scheduler {
	return &Scheduler{
		rules:           rules,
		registry:        reg,
		reloadInterval:  engineCfg.ReloadInterval(),
		cleanupInterval: cleanupInterval,
	}
}

// WithEventCleanup enables the retention sweep over the _events table.
func (s *Scheduler) WithEventCleanup(db *sql.DB, dialect store.Dialect, instrCfg config.InstrumentationConfig) *Scheduler {
	if instrCfg.Enabled {
		s.events = db
		s.dialect = dialect
		s.instrConfig = instrCfg
	}
	return s
}

// Start begins the background tickers. A non-positive reload interval
// disables periodic reloads.
func (s *Scheduler) Start() {
	s.done = make(chan struct{})
	if s.reloadInterval > 0 {
		s.reloadTicker = time.NewTicker(s.reloadInterval)
	}
	if s.events != nil {
		s.cleanupTicker = time.NewTicker(s.cleanupInterval)
	}
	s.wg.Add(1)
	go s.run()
	log.Printf("Scheduler started (registry reload: %s, event cleanup: %t)", s.reloadInterval, s.events != nil)
}

// Stop halts the tickers and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.reloadTicker != nil {
		s.reloadTicker.Stop()
	}
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	if s.done != nil {
		close(s.done)
		s.wg.Wait()
		s.done = nil
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// nil channels block forever, which disables the matching case
	var reloadCh, cleanupCh <-chan time.Time
	if s.reloadTicker != nil {
		reloadCh = s.reloadTicker.C
	}
	if s.cleanupTicker != nil {
		cleanupCh = s.cleanupTicker.C
	}

	for {
		select {
		case <-s.done:
			return
		case <-reloadCh:
			s.reloadRegistry()
		case <-cleanupCh:
			s.cleanupEvents()
		}
	}
}

func (s *Scheduler) reloadRegistry() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metadata.Reload(ctx, s.rules, s.registry); err != nil {
		log.Errorf("scheduled registry reload: %v", err)
	}
}

func (s *Scheduler) cleanupEvents() {
	instrument.CleanupOldEvents(context.Background(), s.events, s.dialect, s.instrConfig.RetentionDays)
}
