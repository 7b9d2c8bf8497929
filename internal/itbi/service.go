package itbi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/itbi-price-aggregation/internal/observability"
)

// ErrNoMatches is returned when a street query matches no records.
var ErrNoMatches = errors.New("no records match street")

// DefaultExcludedTypologies are line items that are not dwellings.
var DefaultExcludedTypologies = []string{"VAGA DE GARAGEM"}

// DefaultRefreshTimeout bounds a refresh when Options.RefreshTimeout is unset.
const DefaultRefreshTimeout = 10 * time.Minute

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	WindowMonths       int
	Thresholds         Thresholds
	SuggestionLimit    int
	CommercialTokens   []string
	ExcludedTypologies []string
	// RefreshTimeout bounds one shared fetch-and-normalize pass.
	RefreshTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Service orchestrates loading snapshots from the source and answering street queries.
type Service struct {
	store      Store
	source     Source
	normalizer *Normalizer

	window          int
	thresholds      Thresholds
	suggestionLimit int
	excluded        []string
	refreshTimeout  time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	refreshes singleflight.Group

	mu          sync.RWMutex
	lastErr     error
	lastAttempt time.Time
}

// NewService creates a new Service.
func NewService(store Store, source Source, opts Options) *Service {
	s := &Service{
		store:           store,
		source:          source,
		normalizer:      NewNormalizer(opts.CommercialTokens),
		window:          opts.WindowMonths,
		thresholds:      opts.Thresholds,
		suggestionLimit: opts.SuggestionLimit,
		excluded:        opts.ExcludedTypologies,
		refreshTimeout:  opts.RefreshTimeout,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		now:             opts.Now,
	}
	if s.window <= 0 {
		s.window = DefaultWindowMonths
	}
	if s.thresholds == (Thresholds{}) {
		s.thresholds = DefaultThresholds()
	}
	if s.suggestionLimit <= 0 {
		s.suggestionLimit = DefaultSuggestionLimit
	}
	if s.excluded == nil {
		s.excluded = DefaultExcludedTypologies
	}
	if s.refreshTimeout <= 0 {
		s.refreshTimeout = DefaultRefreshTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Refresh fetches and normalizes the whole dataset and installs it as the
// current snapshot. Concurrent calls share a single fetch. The shared load
// runs detached from any one caller and is bounded by the refresh timeout;
// each caller stops waiting when its own ctx is done. On failure the
// previous snapshot, if any, stays in place.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := s.refreshes.DoChan("refresh", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()
		return s.load(loadCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("refresh joined an in-flight load")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Service) load(ctx context.Context) (*Snapshot, error) {
	if s.source == nil {
		return nil, fmt.Errorf("no itbi source configured")
	}

	start := s.now()
	s.logger.Info("loading itbi snapshot", "source", s.source.Name())

	features, err := s.source.FetchAll(ctx)
	if err != nil {
		s.metrics.RecordRefresh(err, s.now().Sub(start))
		s.setResult(err, start)
		s.logger.Error("itbi load failed; keeping previous snapshot if any", "error", err)
		return nil, err
	}

	records, stats := s.normalizer.Normalize(features)
	snapshot := &Snapshot{
		ID:       uuid.NewString(),
		LoadedAt: s.now().UTC(),
		Fetched:  len(features),
		Stats:    stats,
		Records:  records,
	}
	s.store.Replace(snapshot)
	s.setResult(nil, start)

	s.metrics.RecordRefresh(nil, s.now().Sub(start))
	s.metrics.RecordSnapshot(stats.Kept, stats.MissingAddress, stats.InvalidPeriod)
	s.logger.Info("itbi snapshot loaded",
		"snapshot", snapshot.ID,
		"fetched", len(features),
		"kept", stats.Kept,
		"missing_address", stats.MissingAddress,
		"invalid_period", stats.InvalidPeriod,
	)
	return snapshot, nil
}

func (s *Service) setResult(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.lastAttempt = at.UTC()
}

// LastError returns the error of the most recent refresh, or nil if it succeeded.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Status describes the current snapshot and the most recent refresh attempt.
type Status struct {
	Loaded      bool           `json:"loaded"`
	SnapshotID  string         `json:"snapshotId,omitempty"`
	LoadedAt    *time.Time     `json:"loadedAt,omitempty"`
	Fetched     int            `json:"fetched"`
	Stats       NormalizeStats `json:"stats"`
	LastAttempt *time.Time     `json:"lastAttempt,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
}

// Status reports the snapshot state.
func (s *Service) Status() Status {
	var st Status
	if snap, err := s.store.Current(); err == nil {
		loadedAt := snap.LoadedAt
		st.Loaded = true
		st.SnapshotID = snap.ID
		st.LoadedAt = &loadedAt
		st.Fetched = snap.Fetched
		st.Stats = snap.Stats
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.lastAttempt.IsZero() {
		at := s.lastAttempt
		st.LastAttempt = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// snapshot returns the current snapshot, attaching the last refresh failure
// to the store error so callers can surface it.
func (s *Service) snapshot() (*Snapshot, error) {
	snap, err := s.store.Current()
	if err != nil {
		if lastErr := s.LastError(); lastErr != nil {
			return nil, fmt.Errorf("%w: last load failed: %v", err, lastErr)
		}
		return nil, err
	}
	return snap, nil
}

// Records returns the canonical records of one use class, optionally
// narrowed to a street, with non-dwelling typologies removed.
func (s *Service) Records(class UseClass, street string) ([]PropertyRecord, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	records := FilterByUse(snap.Records, class, s.excluded)
	if strings.TrimSpace(street) != "" {
		records = Match(records, street)
	}
	return records, nil
}

// Suggest returns address suggestions for the given use class.
func (s *Service) Suggest(class UseClass, query string) ([]Suggestion, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	s.metrics.RecordQuery("suggest")
	return Suggest(FilterByUse(snap.Records, class, s.excluded), query, s.suggestionLimit), nil
}

// Report matches a street and derives its monthly series and signals.
func (s *Service) Report(class UseClass, street string) (StreetReport, error) {
	snap, err := s.snapshot()
	if err != nil {
		return StreetReport{}, err
	}
	s.metrics.RecordQuery("report")

	matched := Match(FilterByUse(snap.Records, class, s.excluded), street)
	if len(matched) == 0 {
		return StreetReport{}, ErrNoMatches
	}

	series := Aggregate(matched, s.now(), s.window)
	return StreetReport{
		SnapshotID:   snap.ID,
		Query:        street,
		UseClass:     class,
		Neighborhood: matched[0].Neighborhood,
		Matched:      len(matched),
		Series:       series,
		Insights:     Summarize(matched, series, s.thresholds),
	}, nil
}
