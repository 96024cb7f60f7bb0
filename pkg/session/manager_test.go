package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lnscraper/pkg/checkpoint"
	"lnscraper/pkg/config"
	"lnscraper/pkg/errors"
	"lnscraper/pkg/logger"
	"lnscraper/pkg/models"
	"lnscraper/pkg/partial"
	"lnscraper/pkg/target"
)

// captureWriter records what the session asked to be written.
type captureWriter struct {
	calls  int
	result partial.Result
}

func (w *captureWriter) Write(profileName, profileURL string, result partial.Result) (string, error) {
	w.calls++
	w.result = result
	return "/tmp/out.md", nil
}

// nopLimiter removes pacing from tests.
type nopLimiter struct{}

func (nopLimiter) Allow() bool                    { return true }
func (nopLimiter) Wait(ctx context.Context) error { return ctx.Err() }
func (nopLimiter) Reset()                         {}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Checkpoint.Directory = t.TempDir()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Retry.BreakerCooldown = time.Millisecond
	cfg.Output.Directory = t.TempDir()
	return cfg
}

func testProfile(t *testing.T) target.Profile {
	t.Helper()
	profile, err := target.Parse("jane-doe")
	require.NoError(t, err)
	return profile
}

func newTestManager(t *testing.T, cfg *config.Config, opts Options, fetcher Fetcher, writer Writer) *Manager {
	t.Helper()
	mgr, err := New(cfg, testProfile(t), opts, Deps{
		Fetcher: fetcher,
		Writer:  writer,
		Limiter: nopLimiter{},
		Logger:  logger.NewTestLogger(),
	})
	require.NoError(t, err)
	return mgr
}

func batchOf(cursorAfter string, hasMore bool, contents ...string) models.Batch {
	b := models.Batch{NextCursor: cursorAfter, HasMore: hasMore}
	for _, c := range contents {
		b.Posts = append(b.Posts, models.Post{Content: c, PostType: "text"})
	}
	return b
}

func TestRunCompletesAcrossBatches(t *testing.T) {
	cfg := testConfig(t)
	writer := &captureWriter{}

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		switch calls {
		case 1:
			assert.Equal(t, "", cursor)
			return batchOf("c1", true, "a", "b"), nil
		case 2:
			assert.Equal(t, "c1", cursor)
			return batchOf("c2", true, "c"), nil
		default:
			assert.Equal(t, "c2", cursor)
			return batchOf("", false, "d"), nil
		}
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, writer)
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.Equal(t, 4, outcome.ItemsCollected)
	assert.Equal(t, 0, outcome.PagesFailed)
	assert.False(t, outcome.Partial)
	assert.False(t, outcome.Empty)
	assert.Equal(t, "/tmp/out.md", outcome.OutputPath)

	require.Equal(t, 1, writer.calls)
	require.Len(t, writer.result.Posts, 4)
	assert.Equal(t, "a", writer.result.Posts[0].Content)
	assert.Equal(t, "d", writer.result.Posts[3].Content)

	// Completed sessions leave no record behind by default.
	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	require.NoError(t, err)
	assert.False(t, store.Exists(outcome.SessionID))
}

func TestRunCheckpointsAfterEachBatch(t *testing.T) {
	cfg := testConfig(t)
	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	require.NoError(t, err)

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		if calls == 2 {
			// The checkpoint from batch 1 must already be durable.
			id := checkpoint.SessionID("https://www.linkedin.com/in/jane-doe", cfg.Output.Directory)
			state, err := store.Load(id)
			require.NoError(t, err)
			assert.Equal(t, "c1", state.Cursor)
			assert.Equal(t, 2, state.CollectedCount)
			assert.Equal(t, checkpoint.StatusActive, state.Status)
		}
		if calls < 2 {
			return batchOf("c1", true, "a", "b"), nil
		}
		return batchOf("", false, "c"), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	cfg := testConfig(t)

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		// The second page fails twice before succeeding.
		if cursor == "c1" && calls < 4 {
			return models.Batch{}, errors.New(errors.ErrorTypeNetwork, "connection reset")
		}
		if cursor == "" {
			return batchOf("c1", true, "a"), nil
		}
		return batchOf("", false, "b"), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.Equal(t, 2, outcome.ItemsCollected)
	assert.Equal(t, 0, outcome.PagesFailed)
	assert.False(t, outcome.Partial)
}

func TestRunDegradesAfterConsecutivePageFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.PageFailureLimit = 3
	writer := &captureWriter{}

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		if calls == 1 {
			return batchOf("c1", true, "a", "b"), nil
		}
		return models.Batch{}, errors.New(errors.ErrorTypeNetwork, "connection reset")
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, writer)
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	// Stopping at the failure threshold is a partial success.
	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.True(t, outcome.Partial)
	assert.Equal(t, 2, outcome.ItemsCollected)
	assert.Equal(t, 3, outcome.PagesFailed)

	require.Equal(t, 1, writer.calls)
	assert.True(t, writer.result.Degraded)
	assert.Len(t, writer.result.Posts, 2)
	assert.Len(t, writer.result.PageFailures, 3)
}

func TestRunFatalWithNothingCollectedFails(t *testing.T) {
	cfg := testConfig(t)

	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		return models.Batch{}, errors.New(errors.ErrorTypeValidation, "profile not found")
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusFailed, outcome.Status)
	assert.Equal(t, 0, outcome.ItemsCollected)
	assert.Error(t, outcome.Cause)

	// The failed state is recorded.
	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	require.NoError(t, err)
	state, err := store.Load(outcome.SessionID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, state.Status)
}

func TestRunFatalAfterItemsCompletesPartial(t *testing.T) {
	cfg := testConfig(t)
	writer := &captureWriter{}

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		if calls == 1 {
			return batchOf("c1", true, "a", "b", "c"), nil
		}
		return models.Batch{}, errors.New(errors.ErrorTypeExtraction, "layout changed")
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, writer)
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.True(t, outcome.Partial)
	assert.Equal(t, 3, outcome.ItemsCollected)
	assert.Equal(t, 1, outcome.PagesFailed)
	assert.Error(t, outcome.Cause)
	assert.Equal(t, 1, writer.calls)
}

func TestRunFailsWhenCheckpointsCannotPersist(t *testing.T) {
	cfg := testConfig(t)
	writer := &captureWriter{}

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		if calls == 1 {
			// Replace the store directory with a plain file so every
			// save from here on fails even after retries.
			require.NoError(t, os.RemoveAll(cfg.Checkpoint.Directory))
			require.NoError(t, os.WriteFile(cfg.Checkpoint.Directory, []byte("x"), 0644))
		}
		return batchOf("next", true, "a"), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, writer)
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	// A session with no durability left must not keep running and then
	// claim success or resumability.
	assert.Equal(t, checkpoint.StatusFailed, outcome.Status)
	assert.Error(t, outcome.Cause)
	assert.Equal(t, errors.ErrorTypeIO, errors.TypeOf(outcome.Cause))
	assert.Equal(t, 3, calls, "loop must stop at the consecutive save-failure bound")
	assert.Equal(t, 3, outcome.ItemsCollected)
	assert.Equal(t, 0, writer.calls)
}

func TestRunResumeHonorsMaxPostsCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.MaxPosts = 92
	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	require.NoError(t, err)

	id := checkpoint.SessionID("https://www.linkedin.com/in/jane-doe", cfg.Output.Directory)
	require.NoError(t, store.Save(&checkpoint.SessionState{
		SessionID:      id,
		Target:         "https://www.linkedin.com/in/jane-doe",
		Cursor:         "c9",
		CollectedCount: 90,
		AttemptedCount: 90,
		Status:         checkpoint.StatusInterrupted,
		StartedAt:      time.Now().UTC().Add(-time.Hour),
	}))

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		return batchOf("next", true, "a"), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	// The cap applies to the whole session, not just the current run.
	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 92, outcome.ItemsCollected)
}

func TestRunEmptyProfile(t *testing.T) {
	cfg := testConfig(t)
	writer := &captureWriter{}

	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		return batchOf("", false), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, writer)
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.True(t, outcome.Empty)
	assert.False(t, outcome.Partial)
	assert.Equal(t, 0, outcome.ItemsCollected)
	// An empty profile still produces a document saying so.
	assert.Equal(t, 1, writer.calls)
}

func TestRunInterruptionCheckpointsAndResumes(t *testing.T) {
	cfg := testConfig(t)
	writer := &captureWriter{}

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	fetcher := FetcherFunc(func(fctx context.Context, cursor string) (models.Batch, error) {
		calls++
		if calls == 1 {
			return batchOf("c1", true, "a", "b"), nil
		}
		// Simulate an in-flight fetch seeing the shutdown.
		cancel()
		<-fctx.Done()
		return models.Batch{}, fctx.Err()
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, writer)
	outcome, err := mgr.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusInterrupted, outcome.Status)
	assert.Equal(t, 2, outcome.ItemsCollected)
	assert.True(t, outcome.Partial)

	// The interruption left a resumable record with the last durable cursor.
	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	require.NoError(t, err)
	state, err := store.Load(outcome.SessionID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusInterrupted, state.Status)
	assert.Equal(t, "c1", state.Cursor)
	assert.Equal(t, 2, state.CollectedCount)

	// Second run resumes from the checkpoint instead of starting over.
	resumeFetcher := FetcherFunc(func(fctx context.Context, cursor string) (models.Batch, error) {
		assert.Equal(t, "c1", cursor)
		return batchOf("", false, "c"), nil
	})
	mgr2 := newTestManager(t, cfg, Options{}, resumeFetcher, writer)
	outcome2, err := mgr2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, outcome2.Status)
	assert.Equal(t, 3, outcome2.ItemsCollected)
}

func TestRunForceRestartDiscardsCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	require.NoError(t, err)

	id := checkpoint.SessionID("https://www.linkedin.com/in/jane-doe", cfg.Output.Directory)
	require.NoError(t, store.Save(&checkpoint.SessionState{
		SessionID:      id,
		Target:         "https://www.linkedin.com/in/jane-doe",
		Cursor:         "c9",
		CollectedCount: 50,
		Status:         checkpoint.StatusInterrupted,
		StartedAt:      time.Now().UTC(),
	}))

	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		assert.Equal(t, "", cursor)
		return batchOf("", false, "a"), nil
	})

	mgr := newTestManager(t, cfg, Options{ForceRestart: true}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.ItemsCollected)
}

func TestRunCorruptCheckpointStartsFresh(t *testing.T) {
	cfg := testConfig(t)
	store, err := checkpoint.NewStore(cfg.Checkpoint.Directory)
	require.NoError(t, err)

	id := checkpoint.SessionID("https://www.linkedin.com/in/jane-doe", cfg.Output.Directory)
	state := &checkpoint.SessionState{
		SessionID: id,
		Target:    "https://www.linkedin.com/in/jane-doe",
		Cursor:    "c5",
		Status:    checkpoint.StatusInterrupted,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Save(state))

	// Tamper with the record on disk so the integrity check fails.
	path := filepath.Join(cfg.Checkpoint.Directory, id+".session.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), `"cursor": "c5"`, `"cursor": "c6"`, 1))
	require.NoError(t, os.WriteFile(path, data, 0644))

	prev := logger.SetLogger(logger.NewTestLogger())
	defer logger.SetLogger(prev)

	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		// Fresh session: the tampered cursor must not be trusted.
		assert.Equal(t, "", cursor)
		return batchOf("", false, "a"), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.ItemsCollected)
}

func TestRunMaxPostsCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.MaxPosts = 3

	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		return batchOf("next", true, "a", "b"), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.Equal(t, 4, outcome.ItemsCollected) // cap checked between pages
	assert.False(t, outcome.Empty)
}

func TestRunMaxPagesCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.MaxPages = 2

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		return batchOf("next", true, "a"), nil
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, outcome.ItemsCollected)
}

func TestRunBlockedWithoutBypassIsFatal(t *testing.T) {
	cfg := testConfig(t)

	calls := 0
	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		calls++
		return models.Batch{}, errors.New(errors.ErrorTypeBlocked, "automation detected")
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusFailed, outcome.Status)
	assert.Equal(t, 1, calls, "a block must not be retried without the bypass override")
}

func TestRunBlockedWithBypassDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.BypassBlock = true
	cfg.Extraction.PageFailureLimit = 2

	fetcher := FetcherFunc(func(ctx context.Context, cursor string) (models.Batch, error) {
		return models.Batch{}, errors.New(errors.ErrorTypeBlocked, "automation detected")
	})

	mgr := newTestManager(t, cfg, Options{}, fetcher, &captureWriter{})
	outcome, err := mgr.Run(context.Background())
	require.NoError(t, err)

	// With the override, blocks degrade like any other page failure.
	assert.Equal(t, checkpoint.StatusCompleted, outcome.Status)
	assert.True(t, outcome.Partial)
	assert.Equal(t, 2, outcome.PagesFailed)
}
