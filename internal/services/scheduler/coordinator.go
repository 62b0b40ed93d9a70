package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/reelrec/reelrec/internal/common"
	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/services/history"
	"github.com/reelrec/reelrec/internal/services/recommend"
	"github.com/reelrec/reelrec/internal/services/taste"
)

// taskKind names one of the three per-user recurring tasks.
type taskKind int

const (
	taskHistory taskKind = iota
	taskTaste
	taskRecommend
)

func (k taskKind) String() string {
	switch k {
	case taskHistory:
		return "history"
	case taskTaste:
		return "taste"
	case taskRecommend:
		return "recommend"
	default:
		return "unknown"
	}
}

// userSchedule tracks when each task last ran for one user. Timestamps
// advance whether the run succeeded or failed, so a persistently failing
// backend retries on cadence rather than every sweep. State is in-memory
// only: a restart re-onboards every user, which is safe because all three
// tasks are idempotent against the store.
type userSchedule struct {
	lastRun  map[taskKind]time.Time
	inFlight bool
}

// Coordinator discovers users and drives the recurring pipeline for each:
// history ingestion, taste refresh, and the monthly recommendation pass.
// A fast poll onboards new users with an immediate full run; a coarse
// sweep re-runs whichever tasks have exceeded their cadence.
type Coordinator struct {
	directory  interfaces.UserDirectory
	items      interfaces.ItemStorage
	historySvc *history.Service
	aggregator *history.Aggregator
	synth      *taste.Synthesizer
	engine     *recommend.Engine
	cfg        *common.Config
	logger     arbor.ILogger

	cron    *cron.Cron
	clock   func() time.Time
	mu      sync.Mutex
	wg      sync.WaitGroup
	users   map[string]*userSchedule
	running bool
}

// NewCoordinator creates a scheduling coordinator.
func NewCoordinator(
	directory interfaces.UserDirectory,
	items interfaces.ItemStorage,
	historySvc *history.Service,
	aggregator *history.Aggregator,
	synth *taste.Synthesizer,
	engine *recommend.Engine,
	cfg *common.Config,
	logger arbor.ILogger,
) *Coordinator {
	return &Coordinator{
		directory:  directory,
		items:      items,
		historySvc: historySvc,
		aggregator: aggregator,
		synth:      synth,
		engine:     engine,
		cfg:        cfg,
		logger:     logger,
		cron:       cron.New(),
		clock:      time.Now,
		users:      make(map[string]*userSchedule),
	}
}

// Start registers the two poll loops and begins scheduling. The first user
// poll runs immediately so startup does not wait out a poll interval.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	c.running = true
	c.mu.Unlock()

	pollSpec := "@every " + c.cfg.Scheduler.UserPollInterval
	if _, err := c.cron.AddFunc(pollSpec, func() { c.PollUsers(ctx) }); err != nil {
		return fmt.Errorf("failed to register user poll: %w", err)
	}

	sweepSpec := "@every " + c.cfg.Scheduler.SweepInterval
	if _, err := c.cron.AddFunc(sweepSpec, func() { c.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to register cadence sweep: %w", err)
	}

	c.cron.Start()
	c.logger.Info().
		Str("user_poll", c.cfg.Scheduler.UserPollInterval).
		Str("sweep", c.cfg.Scheduler.SweepInterval).
		Msg("Scheduler started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.PollUsers(ctx)
	}()

	return nil
}

// Stop halts the poll loops and waits for any in-progress cron invocation
// and for the startup poll, so the stores stay open until every task run
// has finished.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	<-c.cron.Stop().Done()
	c.wg.Wait()
	c.logger.Info().Msg("Scheduler stopped")
}

// PollUsers refreshes the known-user set from the directory. Unknown users
// are onboarded with an immediate full pipeline run. A directory failure or
// empty listing means no work this tick, never an error.
func (c *Coordinator) PollUsers(ctx context.Context) {
	userIDs, err := c.directory.ListUsers(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("User directory unavailable, skipping poll")
		return
	}

	for _, userID := range userIDs {
		if userID == "" {
			continue
		}

		c.mu.Lock()
		_, known := c.users[userID]
		if !known {
			c.users[userID] = &userSchedule{lastRun: make(map[taskKind]time.Time)}
		}
		c.mu.Unlock()

		if !known {
			c.logger.Info().
				Str("user_id", userID).
				Msg("New user discovered, running initial pipeline")
			c.runTasks(ctx, userID, []taskKind{taskHistory, taskTaste, taskRecommend})
		}
	}
}

// Sweep runs every due task for every known user. Tasks always run in
// pipeline order so a recommendation pass sees the history and taste
// refreshed in the same sweep.
func (c *Coordinator) Sweep(ctx context.Context) {
	c.mu.Lock()
	userIDs := make([]string, 0, len(c.users))
	for userID := range c.users {
		userIDs = append(userIDs, userID)
	}
	c.mu.Unlock()

	for _, userID := range userIDs {
		due := c.dueTasks(userID)
		if len(due) == 0 {
			continue
		}
		c.runTasks(ctx, userID, due)
	}
}

// dueTasks returns the tasks whose cadence has elapsed for the user, in
// pipeline order.
func (c *Coordinator) dueTasks(userID string) []taskKind {
	cadences := map[taskKind]time.Duration{
		taskHistory:   common.Duration(c.cfg.History.Cadence),
		taskTaste:     common.Duration(c.cfg.Taste.Cadence),
		taskRecommend: common.Duration(c.cfg.Recommend.Cadence),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.users[userID]
	if !ok {
		return nil
	}

	now := c.clock()
	due := make([]taskKind, 0, 3)
	for _, kind := range []taskKind{taskHistory, taskTaste, taskRecommend} {
		last, ran := entry.lastRun[kind]
		if !ran || now.Sub(last) >= cadences[kind] {
			due = append(due, kind)
		}
	}
	return due
}

// runTasks executes the given tasks for one user, serially and in order.
// A per-user in-flight guard drops overlapping runs; task failures are
// logged and the timestamp still advances.
func (c *Coordinator) runTasks(ctx context.Context, userID string, tasks []taskKind) {
	c.mu.Lock()
	entry, ok := c.users[userID]
	if !ok || entry.inFlight {
		c.mu.Unlock()
		return
	}
	entry.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		entry.inFlight = false
		c.mu.Unlock()
	}()

	for _, kind := range tasks {
		if ctx.Err() != nil {
			return
		}

		started := c.clock()
		err := c.runTask(ctx, userID, kind)

		c.mu.Lock()
		entry.lastRun[kind] = started
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Str("task", kind.String()).
				Msg("Scheduled task failed")
			continue
		}
		c.logger.Info().
			Str("user_id", userID).
			Str("task", kind.String()).
			Dur("duration", c.clock().Sub(started)).
			Msg("Scheduled task completed")
	}
}

func (c *Coordinator) runTask(ctx context.Context, userID string, kind taskKind) error {
	switch kind {
	case taskHistory:
		return c.historySvc.Sync(ctx, userID)
	case taskTaste:
		raw, err := c.items.AllWatched(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load watch history for user %s: %w", userID, err)
		}
		_, err = c.synth.Refresh(ctx, userID, c.aggregator.HistoryText(raw))
		return err
	case taskRecommend:
		_, err := c.engine.Recommend(ctx, userID)
		return err
	default:
		return fmt.Errorf("unknown task kind %d", kind)
	}
}
