// Package scheduler runs the automated weekly analysis pipeline: discover
// the optimal expiration, snapshot the market, request an AI
// recommendation and persist the result.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quantdesk/options-desk/dte"
	"github.com/quantdesk/options-desk/notification"
	"github.com/quantdesk/options-desk/types"
)

// Pipeline phases reported in ExecutionStatus.
const (
	PhaseIdle        = "idle"
	PhaseDiscovery   = "dte_discovery"
	PhaseMarketData  = "market_data"
	PhaseAnalysis    = "ai_analysis"
	PhasePersistence = "persistence"
)

// analysisRetention bounds how long persisted analyses are kept.
const analysisRetention = 90 * 24 * time.Hour

// SnapshotSource builds market snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context, ticker string) (*types.MarketSnapshot, error)
}

// Analyzer exchanges a snapshot for an AI analysis report.
type Analyzer interface {
	Analyze(ctx context.Context, snapshot *types.MarketSnapshot, discovery *dte.DiscoveryResult) (*types.AnalysisReport, error)
}

// ReportStore persists finished reports and prunes stale ones.
type ReportStore interface {
	SaveAnalysis(report *types.AnalysisReport) error
	CleanOldAnalyses(olderThan time.Duration) (int64, error)
}

// ExpirationFinder discovers the optimal expiration. *dte.Discoverer
// satisfies this.
type ExpirationFinder interface {
	FindOptimalDTEWithFallback(ctx context.Context, primary, fallback dte.DiscoveryRequest) (*dte.DiscoveryResult, error)
}

// Config controls what the scheduler analyzes and when.
type Config struct {
	Ticker            string
	TargetDTE         int
	Tolerance         int
	FallbackTargetDTE int
	FallbackTolerance int
	RunDay            time.Weekday
	RunAt             string // HH:MM, in Location
	Location          *time.Location
}

// DefaultConfig mirrors the production setup: SPY, monthly-ish expirations
// with a weekly fallback, Mondays at 10:00 New York time.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Ticker:            "SPY",
		TargetDTE:         32,
		Tolerance:         5,
		FallbackTargetDTE: 7,
		FallbackTolerance: 3,
		RunDay:            time.Monday,
		RunAt:             "10:00",
		Location:          loc,
	}
}

// ExecutionStatus describes the current or last pipeline run.
type ExecutionStatus struct {
	IsActive      bool       `json:"is_active"`
	CurrentPhase  string     `json:"current_phase"`
	Trigger       string     `json:"trigger,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastCompleted *time.Time `json:"last_completed,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Success       bool       `json:"success"`
	LastReportID  string     `json:"last_report_id,omitempty"`
	SelectedDTE   int        `json:"selected_dte,omitempty"`
	NextRun       *time.Time `json:"next_run,omitempty"`
}

// TradingScheduler owns the analysis pipeline and its timer loop.
type TradingScheduler struct {
	cfg        Config
	discoverer ExpirationFinder
	snapshots  SnapshotSource
	analyzer   Analyzer
	store      ReportStore
	feed       *notification.Manager

	mu      sync.RWMutex
	status  ExecutionStatus
	running bool
	cancel  context.CancelFunc

	now func() time.Time
}

// New creates a scheduler. feed may be nil to disable the activity feed.
func New(cfg Config, discoverer ExpirationFinder, snapshots SnapshotSource, analyzer Analyzer, store ReportStore, feed *notification.Manager) *TradingScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &TradingScheduler{
		cfg:        cfg,
		discoverer: discoverer,
		snapshots:  snapshots,
		analyzer:   analyzer,
		store:      store,
		feed:       feed,
		status:     ExecutionStatus{CurrentPhase: PhaseIdle},
		now:        time.Now,
	}
}

// Start launches the timer loop. It returns immediately; Stop cancels the
// loop.
func (s *TradingScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Info("scheduler already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(loopCtx)
}

// Stop cancels the timer loop.
func (s *TradingScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	log.Info("scheduler stopped")
}

// Status returns a copy of the execution status.
func (s *TradingScheduler) Status() ExecutionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	if s.running {
		next := nextRun(s.now().In(s.cfg.Location), s.cfg.RunDay, s.cfg.RunAt)
		status.NextRun = &next
	}
	return status
}

func (s *TradingScheduler) loop(ctx context.Context) {
	log.Infof("scheduler started: %s analysis on %s at %s (%s)",
		s.cfg.Ticker, s.cfg.RunDay, s.cfg.RunAt, s.cfg.Location)

	for {
		next := nextRun(s.now().In(s.cfg.Location), s.cfg.RunDay, s.cfg.RunAt)
		wait := next.Sub(s.now())
		log.Infof("next scheduled analysis at %s (in %s)", next.Format(time.RFC1123), wait.Round(time.Minute))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx, "scheduled"); err != nil {
				log.Errorf("scheduled analysis failed: %v", err)
			}
		}
	}
}

// RunOnce executes the full pipeline. Only one run may be active at a
// time; a second caller gets an error instead of a queued run.
func (s *TradingScheduler) RunOnce(ctx context.Context, trigger string) (*types.AnalysisReport, error) {
	if err := s.begin(trigger); err != nil {
		return nil, err
	}

	report, err := s.run(ctx)
	s.finish(report, err)
	return report, err
}

func (s *TradingScheduler) begin(trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsActive {
		return fmt.Errorf("analysis already in progress (phase %s)", s.status.CurrentPhase)
	}

	started := s.now()
	s.status = ExecutionStatus{
		IsActive:      true,
		CurrentPhase:  PhaseDiscovery,
		Trigger:       trigger,
		StartedAt:     &started,
		LastCompleted: s.status.LastCompleted,
	}

	s.notify(notification.AnalysisStarted(s.cfg.Ticker, trigger))

	return nil
}

func (s *TradingScheduler) run(ctx context.Context) (*types.AnalysisReport, error) {
	primary := dte.DiscoveryRequest{Ticker: s.cfg.Ticker, TargetDTE: s.cfg.TargetDTE, Tolerance: s.cfg.Tolerance}
	fallback := dte.DiscoveryRequest{Ticker: s.cfg.Ticker, TargetDTE: s.cfg.FallbackTargetDTE, Tolerance: s.cfg.FallbackTolerance}

	discovery, err := s.discoverer.FindOptimalDTEWithFallback(ctx, primary, fallback)
	if err != nil {
		return nil, fmt.Errorf("dte discovery: %w", err)
	}
	if discovery.Found {
		s.setPhase(PhaseMarketData, discovery.SelectedDTE)
		s.notify(notification.ExpirationPicked(s.cfg.Ticker, discovery.SelectedDTE, s.cfg.TargetDTE, discovery.OptionCount))
	} else {
		// Proceed with the nominal target; the analysis prompt calls out
		// that no live expiration matched.
		log.Warnf("no tradeable expiration near %d DTE for %s (%s), using nominal target",
			discovery.TargetDTE, s.cfg.Ticker, discovery.Reason)
		s.setPhase(PhaseMarketData, 0)
	}

	snapshot, err := s.snapshots.Snapshot(ctx, s.cfg.Ticker)
	if err != nil {
		return nil, fmt.Errorf("market snapshot: %w", err)
	}

	s.setPhase(PhaseAnalysis, 0)
	report, err := s.analyzer.Analyze(ctx, snapshot, discovery)
	if err != nil {
		return nil, fmt.Errorf("ai analysis: %w", err)
	}

	s.setPhase(PhasePersistence, 0)
	if err := s.store.SaveAnalysis(report); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	// Retention is best effort, a failed prune never fails the run.
	if _, err := s.store.CleanOldAnalyses(analysisRetention); err != nil {
		log.Warnf("pruning old analyses: %v", err)
	}

	return report, nil
}

func (s *TradingScheduler) finish(report *types.AnalysisReport, err error) {
	s.mu.Lock()
	completed := s.now()
	s.status.IsActive = false
	s.status.CurrentPhase = PhaseIdle
	s.status.LastCompleted = &completed
	if err != nil {
		s.status.Success = false
		s.status.LastError = err.Error()
	} else {
		s.status.Success = true
		s.status.LastError = ""
		s.status.LastReportID = report.ID
		s.status.SelectedDTE = report.DTE
	}
	s.mu.Unlock()

	if err != nil {
		s.notify(notification.SystemAlert("Analysis Failed", err.Error()))
		return
	}
	s.notify(notification.AnalysisCompleted(report.Ticker, report.DTE, len(report.Recommendations)))
}

func (s *TradingScheduler) setPhase(phase string, selectedDTE int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.CurrentPhase = phase
	if selectedDTE > 0 {
		s.status.SelectedDTE = selectedDTE
	}
}

func (s *TradingScheduler) notify(event notification.Event) {
	if s.feed != nil {
		s.feed.Add(event)
	}
}

// nextRun returns the next occurrence of weekday at hhmm strictly after
// from, in from's location.
func nextRun(from time.Time, weekday time.Weekday, hhmm string) time.Time {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		hour, minute = 10, 0
	}

	daysAhead := (int(weekday) - int(from.Weekday()) + 7) % 7
	candidate := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location()).
		AddDate(0, 0, daysAhead)
	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
