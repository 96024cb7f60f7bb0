package session

import (
	"context"
	goerrors "errors"
	"time"

	"lnscraper/pkg/checkpoint"
	"lnscraper/pkg/config"
	"lnscraper/pkg/errors"
	"lnscraper/pkg/logger"
	"lnscraper/pkg/models"
	"lnscraper/pkg/partial"
	"lnscraper/pkg/progress"
	"lnscraper/pkg/ratelimit"
	"lnscraper/pkg/retry"
	"lnscraper/pkg/target"
)

const (
	opPageFetch      = "page_fetch"
	opCheckpointSave = "checkpoint_save"
)

// checkpointFailureLimit ends the session once this many consecutive
// checkpoint saves have failed even after retries. Running on without
// durability would report progress that was never persisted.
const checkpointFailureLimit = 3

// Outcome is the terminal summary of a session run.
type Outcome struct {
	SessionID      string
	Status         checkpoint.Status
	ItemsCollected int
	PagesFailed    int
	// Partial marks a completed session that stopped early or skipped
	// pages. A partial outcome is a success with annotations, not a
	// failure.
	Partial bool
	// Empty marks a completed session that found the profile genuinely
	// has no posts. Distinct from a failed extraction.
	Empty      bool
	OutputPath string
	Elapsed    time.Duration
	Cause      error
}

// Options controls how a run starts.
type Options struct {
	// ForceRestart discards any existing checkpoint and starts fresh.
	ForceRestart bool
	// TotalEstimate is an optional expected item count used for ETA.
	TotalEstimate int
}

// Deps are the collaborators a Manager drives. Zero-value fields are
// filled with production defaults by New.
type Deps struct {
	Fetcher  Fetcher
	Writer   Writer
	Store    *checkpoint.Store
	Limiter  ratelimit.Limiter
	Executor *retry.Executor
	Logger   logger.Logger
}

// Manager orchestrates one extraction session end to end: checkpoint
// recovery, the fetch loop with retry and breaker discipline, partial
// degradation, progress accounting, and finalization. It is the sole
// writer of the session state.
type Manager struct {
	cfg     *config.Config
	profile target.Profile
	opts    Options

	fetcher  Fetcher
	writer   Writer
	store    *checkpoint.Store
	limiter  ratelimit.Limiter
	executor *retry.Executor
	log      logger.Logger

	state    *checkpoint.SessionState
	acc      *partial.Accumulator
	progress *progress.Accountant

	// baseCollected is the count carried over from a resumed checkpoint;
	// the accumulator only sees items from the current run.
	baseCollected int

	// saveFailures counts consecutive checkpoint saves that failed after
	// exhausting their retries.
	saveFailures int
}

// New creates a session manager for one target profile.
func New(cfg *config.Config, profile target.Profile, opts Options, deps Deps) (*Manager, error) {
	if deps.Fetcher == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "a fetcher is required")
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	store := deps.Store
	if store == nil {
		dir := cfg.Checkpoint.Directory
		if dir == "" {
			var err error
			dir, err = checkpoint.DefaultDir()
			if err != nil {
				return nil, errors.Wrap(errors.ErrorTypeIO, "failed to resolve checkpoint directory", err)
			}
		}
		var err error
		store, err = checkpoint.NewStore(dir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeIO, "failed to open checkpoint store", err)
		}
	}

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}

	executor := deps.Executor
	if executor == nil {
		executor = retry.NewExecutor(&retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:    cfg.Retry.BaseDelay,
				MaxDelay:     cfg.Retry.MaxDelay,
				Multiplier:   cfg.Retry.Multiplier,
				JitterFactor: cfg.Retry.JitterFactor,
			},
			BreakerThreshold: cfg.Retry.BreakerThreshold,
			BreakerCooldown:  cfg.Retry.BreakerCooldown,
			Logger:           log,
		})
	}

	writer := deps.Writer

	return &Manager{
		cfg:      cfg,
		profile:  profile,
		opts:     opts,
		fetcher:  deps.Fetcher,
		writer:   writer,
		store:    store,
		limiter:  limiter,
		executor: executor,
		log:      log,
	}, nil
}

// Stop requests a graceful stop. The loop exits before the next fetch;
// already collected items are finalized and checkpointed.
func (m *Manager) Stop() {
	if m.acc != nil {
		m.acc.RequestStop()
	}
}

// Progress returns the current progress snapshot, safe to call from an
// observer goroutine while the session runs.
func (m *Manager) Progress() progress.Snapshot {
	if m.progress == nil {
		return progress.Snapshot{}
	}
	return m.progress.Snapshot()
}

// Run executes the session to a terminal outcome. Cancellation of ctx
// is the interruption signal: the run checkpoints what it has, marks
// the session interrupted, and returns without error.
func (m *Manager) Run(ctx context.Context) (*Outcome, error) {
	sessionID := checkpoint.SessionID(m.profile.URL, m.cfg.Output.Directory)

	if err := m.prepare(sessionID); err != nil {
		return nil, err
	}
	m.baseCollected = m.state.CollectedCount

	m.acc = partial.NewAccumulator(partial.Config{
		ConsecutiveFailureLimit: m.cfg.Extraction.PageFailureLimit,
		MaxItems:                m.cfg.Extraction.MaxPosts,
		PriorItems:              m.baseCollected,
	})

	m.progress = progress.NewAccountant()
	m.progress.Seed(m.state.CollectedCount, m.state.AttemptedCount, m.state.ErrorCount, m.state.StartedAt)
	if m.opts.TotalEstimate > 0 {
		m.progress.SetTotalEstimate(m.opts.TotalEstimate)
	}

	return m.runLoop(ctx, sessionID)
}

// prepare resolves the starting state: resume from a valid checkpoint,
// start fresh otherwise. A corrupt checkpoint is reported loudly and
// never trusted.
func (m *Manager) prepare(sessionID string) error {
	fresh := func() {
		m.state = &checkpoint.SessionState{
			SessionID: sessionID,
			Target:    m.profile.URL,
			Status:    checkpoint.StatusActive,
			StartedAt: time.Now().UTC(),
		}
		logger.LogSessionStart(sessionID, m.profile.URL)
	}

	if m.opts.ForceRestart {
		if err := m.store.Delete(sessionID); err != nil {
			m.log.WithError(err).Warn("failed to discard previous session record")
		}
		fresh()
		return nil
	}

	prev, err := m.store.Load(sessionID)
	switch {
	case goerrors.Is(err, checkpoint.ErrNotFound):
		fresh()
	case goerrors.Is(err, checkpoint.ErrCorrupt):
		logger.LogCorruptCheckpoint(sessionID)
		fresh()
	case err != nil:
		return errors.Wrap(errors.ErrorTypeIO, "failed to load session record", err)
	case prev.Status.Terminal():
		// A finished session is never resumed; start over.
		fresh()
	default:
		if !prev.Status.CanTransition(checkpoint.StatusActive) {
			fresh()
			return nil
		}
		prev.Status = checkpoint.StatusActive
		m.state = prev
		logger.LogSessionResume(sessionID, prev.Cursor, prev.CollectedCount)
	}
	return nil
}

func (m *Manager) runLoop(ctx context.Context, sessionID string) (*Outcome, error) {
	var (
		pagesFetched int
		endOfFeed    bool
		fatalCause   error
	)

	for m.acc.ShouldContinue() {
		if m.cfg.Extraction.MaxPages > 0 && pagesFetched >= m.cfg.Extraction.MaxPages {
			break
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return m.finishInterrupted(sessionID, err)
		}

		cursor := m.state.Cursor
		batch, err := retry.ExecuteWithResult(m.executor, ctx, opPageFetch,
			func(ctx context.Context) (models.Batch, error) {
				return m.fetcher.FetchNext(ctx, cursor)
			}, m.classify)
		pagesFetched++

		if err != nil {
			if ctx.Err() != nil {
				return m.finishInterrupted(sessionID, ctx.Err())
			}

			var fatal *retry.FatalError
			if goerrors.As(err, &fatal) {
				m.acc.RecordPageFailure(cursor, fatal.Err.Error())
				m.bumpError()
				fatalCause = err
				break
			}

			// Retries exhausted or circuit open: annotate the page and
			// move on, leaving the cursor in place. The accumulator's
			// consecutive-failure threshold decides when to give up.
			m.acc.RecordPageFailure(cursor, err.Error())
			m.bumpError()
			logger.LogPageFailure(sessionID, cursor, err.Error())

			if goerrors.Is(err, retry.ErrCircuitOpen) {
				logger.LogCircuitOpen(opPageFetch, m.cfg.Retry.BreakerCooldown)
				if werr := retry.Wait(ctx, m.cfg.Retry.BreakerCooldown); werr != nil {
					return m.finishInterrupted(sessionID, werr)
				}
			}

			if serr := m.checkpointThrottled(); serr != nil && m.saveFailures >= checkpointFailureLimit {
				return m.finishFailed(sessionID, errors.Wrap(errors.ErrorTypeIO, "cannot persist session state", serr))
			}
			continue
		}

		items := batch.Posts
		for i := range items {
			items[i].Enrich()
		}

		m.acc.RecordSuccess(items)
		m.state.Cursor = batch.NextCursor
		m.state.CollectedCount = m.baseCollected + m.acc.Collected()
		m.state.AttemptedCount += len(items)
		m.progress.Tick(len(items), len(items), 0)

		// Repeated checkpoint-write failure means the session has no
		// durability left; continuing would report progress that was
		// never persisted.
		if serr := m.checkpointNow(); serr != nil && m.saveFailures >= checkpointFailureLimit {
			return m.finishFailed(sessionID, errors.Wrap(errors.ErrorTypeIO, "cannot persist session state", serr))
		}

		if !batch.HasMore {
			endOfFeed = true
			break
		}
	}

	if ctx.Err() != nil {
		return m.finishInterrupted(sessionID, ctx.Err())
	}

	result := m.acc.Finalize()

	// A fatal fetch failure with nothing collected across the whole
	// session is a failed session. With items in hand it degrades to a
	// partial completion instead.
	if fatalCause != nil && m.state.CollectedCount == 0 {
		return m.finishFailed(sessionID, fatalCause)
	}

	return m.finishCompleted(sessionID, result, endOfFeed, fatalCause)
}

// classify applies session policy on top of the default classifier.
// Without the bypass override, an anti-automation block is fatal; with
// it, the block is treated as one more retryable page failure.
func (m *Manager) classify(err error) errors.Class {
	if errors.TypeOf(err) == errors.ErrorTypeBlocked && !m.cfg.Extraction.BypassBlock {
		return errors.ClassFatal
	}
	return errors.Classify(err)
}

func (m *Manager) bumpError() {
	m.state.ErrorCount++
	m.progress.Tick(0, 0, 1)
}

// checkpointNow persists the current state under the same retry
// discipline as fetches, in its own breaker class. A single failed save
// after retries costs at most one page of re-fetching on resume; the
// caller tracks consecutive failures and ends the session once
// durability is gone for good. Uses a background context so an
// interruption-path save still lands after cancellation.
func (m *Manager) checkpointNow() error {
	err := m.executor.Execute(context.Background(), opCheckpointSave, func(context.Context) error {
		return m.store.Save(m.state)
	}, nil)
	if err != nil {
		m.saveFailures++
		m.log.WithError(err).WithField("session_id", m.state.SessionID).Warn("checkpoint save failed")
		return err
	}
	m.saveFailures = 0
	return nil
}

// checkpointThrottled saves at most once per configured interval. The
// failure path changes nothing but the error counter, so its saves are
// rate limited; saves after a successful page are always unconditional.
func (m *Manager) checkpointThrottled() error {
	if time.Since(m.state.LastCheckpointAt) < m.cfg.Checkpoint.Interval {
		return nil
	}
	return m.checkpointNow()
}

func (m *Manager) finishInterrupted(sessionID string, cause error) (*Outcome, error) {
	m.transition(checkpoint.StatusInterrupted)
	m.checkpointNow()

	result := m.acc.Finalize()
	outputPath := m.writeArtifact(result)

	snap := m.progress.Snapshot()
	logger.LogSessionComplete(sessionID, string(checkpoint.StatusInterrupted),
		len(result.Posts), len(result.PageFailures), snap.Elapsed)

	return &Outcome{
		SessionID:      sessionID,
		Status:         checkpoint.StatusInterrupted,
		ItemsCollected: m.state.CollectedCount,
		PagesFailed:    len(result.PageFailures),
		Partial:        len(result.Posts) > 0,
		OutputPath:     outputPath,
		Elapsed:        snap.Elapsed,
		Cause:          cause,
	}, nil
}

func (m *Manager) finishFailed(sessionID string, cause error) (*Outcome, error) {
	m.transition(checkpoint.StatusFailed)
	m.checkpointNow()

	snap := m.progress.Snapshot()
	logger.LogSessionComplete(sessionID, string(checkpoint.StatusFailed),
		m.state.CollectedCount, m.acc.FailedPages(), snap.Elapsed)

	return &Outcome{
		SessionID:      sessionID,
		Status:         checkpoint.StatusFailed,
		ItemsCollected: m.state.CollectedCount,
		PagesFailed:    m.acc.FailedPages(),
		Elapsed:        snap.Elapsed,
		Cause:          cause,
	}, nil
}

func (m *Manager) finishCompleted(sessionID string, result *partial.Result, endOfFeed bool, fatalCause error) (*Outcome, error) {
	m.transition(checkpoint.StatusCompleted)

	partialOutcome := result.Degraded || fatalCause != nil || len(result.PageFailures) > 0
	empty := endOfFeed && len(result.Posts) == 0 && len(result.PageFailures) == 0 &&
		m.state.CollectedCount == 0

	outputPath := m.writeArtifact(result)

	if m.cfg.Checkpoint.DeleteOnComplete {
		if err := m.store.Delete(sessionID); err != nil {
			m.log.WithError(err).Warn("failed to remove completed session record")
		}
	} else {
		m.checkpointNow()
	}

	snap := m.progress.Snapshot()
	logger.LogSessionComplete(sessionID, string(checkpoint.StatusCompleted),
		len(result.Posts), len(result.PageFailures), snap.Elapsed)

	return &Outcome{
		SessionID:      sessionID,
		Status:         checkpoint.StatusCompleted,
		ItemsCollected: m.state.CollectedCount,
		PagesFailed:    len(result.PageFailures),
		Partial:        partialOutcome,
		Empty:          empty,
		OutputPath:     outputPath,
		Elapsed:        snap.Elapsed,
		Cause:          fatalCause,
	}, nil
}

// writeArtifact renders the document when a writer is configured and
// there is anything worth writing. Interruption and completion both go
// through here so a stopped session still leaves its partial document.
func (m *Manager) writeArtifact(result *partial.Result) string {
	if m.writer == nil {
		return ""
	}
	if len(result.Posts) == 0 && len(result.PageFailures) == 0 && m.state.Status != checkpoint.StatusCompleted {
		return ""
	}

	path, err := m.writer.Write(m.profile.Username, m.profile.URL, *result)
	if err != nil {
		m.log.WithError(err).Error("failed to write output document")
		return ""
	}
	return path
}

// transition moves the session status forward, refusing illegal moves.
func (m *Manager) transition(to checkpoint.Status) {
	if !m.state.Status.CanTransition(to) {
		m.log.WarnWithFields("refusing illegal status transition", map[string]interface{}{
			"from": string(m.state.Status),
			"to":   string(to),
		})
		return
	}
	m.state.Status = to
}
