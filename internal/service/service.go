package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/test7679/gold-rate-alert/internal/alerting"
	"github.com/test7679/gold-rate-alert/internal/detector"
	"github.com/test7679/gold-rate-alert/internal/extract"
	"github.com/test7679/gold-rate-alert/internal/fetcher"
	"github.com/test7679/gold-rate-alert/internal/rates"
	"github.com/test7679/gold-rate-alert/internal/storage"
)

const failureNotifyTimeout = 30 * time.Second

// Options tune a Service.
type Options struct {
	SourceURL string
	// LockKey guards overlapping runs when the store supports advisory locks; 0 disables it.
	LockKey  int64
	DebugDir string
}

// Result summarises one pipeline pass.
type Result struct {
	RunID    string
	Outcome  detector.Outcome
	Snapshot rates.Snapshot
	Strategy string
	Notified bool
	// Skipped is set when another run held the lock.
	Skipped bool
}

// Service orchestrates fetching, extraction, change detection, and alerting.
type Service struct {
	fetcher   fetcher.PageFetcher
	extractor *extract.Extractor
	store     storage.SnapshotStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	sourceURL string
	debugDir  string
	locker    storage.AdvisoryLocker
	lockKey   int64
	now       func() time.Time
}

// New constructs the rate-check service.
func New(opts Options, pf fetcher.PageFetcher, ex *extract.Extractor, store storage.SnapshotStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		fetcher:   pf,
		extractor: ex,
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		sourceURL: opts.SourceURL,
		debugDir:  opts.DebugDir,
		locker:    locker,
		lockKey:   opts.LockKey,
		now:       time.Now,
	}
}

// Run executes Check and, on failure, sends a best-effort error report before returning the error.
func (s *Service) Run(ctx context.Context) (Result, error) {
	res, err := s.Check(ctx)
	if err == nil {
		return res, nil
	}

	logger := s.logger.With().Str("run_id", res.RunID).Logger()
	logger.Error().Err(err).Msg("rate check failed")
	if notifyErr := s.ReportFailure(ctx, err); notifyErr != nil {
		logger.Error().Err(notifyErr).Msg("failure report not delivered")
		return res, errors.Join(err, notifyErr)
	}
	return res, err
}

// Check performs one fetch → extract → compare → notify → persist pass.
func (s *Service) Check(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := s.logger.With().Str("run_id", res.RunID).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return res, err
	}
	if !proceed {
		logger.Warn().Int64("lock_key", s.lockKey).Msg("another run holds the lock; skipping")
		res.Skipped = true
		return res, nil
	}
	if unlock != nil {
		defer unlock()
	}

	page, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch page: %w", err)
	}

	extracted, err := s.extractor.Extract(page)
	if err != nil {
		s.dumpPage(logger, page)
		return res, fmt.Errorf("extract rates from %s: %w", page.URL, err)
	}
	res.Snapshot = extracted.Snapshot
	res.Strategy = extracted.Strategy
	logger.Info().
		Str("strategy", extracted.Strategy).
		Str("rates", extracted.Snapshot.String()).
		Msg("rates extracted")

	prev, err := s.store.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load persisted rate: %w", err)
	}

	decision := detector.Compare(prev, extracted.Snapshot)
	res.Outcome = decision.Outcome
	if !decision.Notify() {
		logger.Info().Msg("rates unchanged; nothing to send")
		return res, nil
	}

	observed := s.now()
	note := alerting.Notification{
		Kind:       alerting.KindRates,
		Rates:      extracted.Snapshot,
		Previous:   decision.Previous,
		ObservedAt: observed,
		SourceURL:  s.sourceURL,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		return res, fmt.Errorf("deliver rate report: %w", err)
	}
	res.Notified = true

	record := storage.Record{
		RunID:      res.RunID,
		Rates:      extracted.Snapshot,
		Strategy:   extracted.Strategy,
		SourceURL:  s.sourceURL,
		NotifiedAt: observed.UTC(),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return res, fmt.Errorf("persist rate: %w", err)
	}

	logger.Info().Str("outcome", string(decision.Outcome)).Msg("rate report sent")
	return res, nil
}

// ReportFailure sends the failure report for err through the service notifier.
func (s *Service) ReportFailure(ctx context.Context, err error) error {
	return NotifyFailure(ctx, s.notifier, err, s.sourceURL, s.now())
}

// NotifyFailure delivers an error report. It outlives a cancelled ctx so interrupted runs are still reported.
func NotifyFailure(ctx context.Context, notifier alerting.Notifier, cause error, sourceURL string, at time.Time) error {
	if notifier == nil {
		return errors.New("no notifier configured")
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureNotifyTimeout)
	defer cancel()

	return notifier.Notify(ctx, alerting.Notification{
		Kind:       alerting.KindFailure,
		Err:        cause,
		ObservedAt: at,
		SourceURL:  sourceURL,
	})
}

func (s *Service) dumpPage(logger zerolog.Logger, page *fetcher.Page) {
	paths, err := fetcher.WriteDebugArtifacts(s.debugDir, s.now(), nil, page.HTML(), page.Text())
	if err != nil {
		logger.Warn().Err(err).Msg("write debug artifacts")
		return
	}
	if len(paths) > 0 {
		logger.Info().Strs("paths", paths).Msg("page dump written for diagnosis")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
