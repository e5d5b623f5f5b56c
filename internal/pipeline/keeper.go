package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/service"
)

// Job names.
const (
	JobPhaseSweep  = "phase_sweep"
	JobResolve     = "resolve"
	JobCleanup     = "cleanup"
	JobLeaderboard = "leaderboard"
)

// PhaseSweeper refreshes markets and reports phase transitions.
type PhaseSweeper interface {
	SweepPhases(ctx context.Context, ids []uint64) ([]service.PhaseChange, error)
}

// StatsRecomputer rebuilds per-user statistics from history.
type StatsRecomputer interface {
	RecomputeAll(ctx context.Context) (int, error)
}

// Schedule holds one standard 5-field cron spec per job. An empty spec
// disables the job.
type Schedule struct {
	PhaseSweep  string
	Resolve     string
	Cleanup     string
	Leaderboard string
}

// DefaultSchedule sweeps phases every five minutes, resolves hourly, and runs
// the nightly cleanup followed by the leaderboard recompute.
func DefaultSchedule() Schedule {
	return Schedule{
		PhaseSweep:  "*/5 * * * *",
		Resolve:     "0 * * * *",
		Cleanup:     "0 3 * * *",
		Leaderboard: "30 3 * * *",
	}
}

// KeeperDeps are the components the keeper drives. A nil component disables
// its job.
type KeeperDeps struct {
	Sweeper     PhaseSweeper
	Watch       []uint64
	Resolver    *Resolver
	Archiver    *Archiver
	Leaderboard StatsRecomputer
	Sinks       []service.EventSink
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// Keeper runs periodic maintenance on cron schedules: phase sweeps, market
// resolution, history archival and leaderboard recomputation.
type Keeper struct {
	jobs    map[string]job
	sinks   []service.EventSink
	onJob   func(name string, d time.Duration, err error)
	timeout time.Duration
	logger  *slog.Logger
}

// NewKeeper validates the schedule and registers a job for every configured
// component.
func NewKeeper(sched Schedule, deps KeeperDeps, logger *slog.Logger) (*Keeper, error) {
	k := &Keeper{
		jobs:    make(map[string]job),
		sinks:   deps.Sinks,
		timeout: 10 * time.Minute,
		logger:  logger.With(slog.String("component", "keeper")),
	}

	if deps.Sweeper != nil && len(deps.Watch) > 0 {
		watch := append([]uint64(nil), deps.Watch...)
		k.add(JobPhaseSweep, sched.PhaseSweep, func(ctx context.Context) error {
			changes, err := deps.Sweeper.SweepPhases(ctx, watch)
			for _, ch := range changes {
				k.emit(ctx, phaseEvent(ch))
			}
			return err
		})
	}
	if deps.Resolver != nil {
		k.add(JobResolve, sched.Resolve, func(ctx context.Context) error {
			res, err := deps.Resolver.RunOnce(ctx)
			k.logger.InfoContext(ctx, "resolver pass complete", slog.Int("markets", len(res)))
			return err
		})
	}
	if deps.Archiver != nil {
		k.add(JobCleanup, sched.Cleanup, func(ctx context.Context) error {
			_, err := deps.Archiver.Run(ctx)
			return err
		})
	}
	if deps.Leaderboard != nil {
		k.add(JobLeaderboard, sched.Leaderboard, func(ctx context.Context) error {
			_, err := deps.Leaderboard.RecomputeAll(ctx)
			return err
		})
	}

	for name, j := range k.jobs {
		if _, err := cron.ParseStandard(j.spec); err != nil {
			return nil, fmt.Errorf("pipeline: keeper job %s: invalid cron %q: %w", name, j.spec, err)
		}
	}
	return k, nil
}

func (k *Keeper) add(name, spec string, run func(ctx context.Context) error) {
	if spec == "" {
		k.logger.Info("keeper job disabled", slog.String("job", name))
		return
	}
	k.jobs[name] = job{name: name, spec: spec, run: run}
}

// OnJob registers a hook called after every job run, used for metrics.
func (k *Keeper) OnJob(fn func(name string, d time.Duration, err error)) *Keeper {
	k.onJob = fn
	return k
}

// Jobs lists the registered job names.
func (k *Keeper) Jobs() []string {
	names := make([]string, 0, len(k.jobs))
	for name := range k.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJob runs one job immediately, outside its schedule.
func (k *Keeper) RunJob(ctx context.Context, name string) error {
	j, ok := k.jobs[name]
	if !ok {
		return fmt.Errorf("pipeline: %w: keeper job %q", domain.ErrNotFound, name)
	}
	return k.execute(ctx, j)
}

// Run schedules every job and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (k *Keeper) Run(ctx context.Context) error {
	clog := cronLogger{k.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	for _, name := range k.Jobs() {
		j := k.jobs[name]
		if _, err := c.AddFunc(j.spec, func() {
			if err := k.execute(ctx, j); err != nil && ctx.Err() == nil {
				k.logger.ErrorContext(ctx, "keeper job failed",
					slog.String("job", j.name),
					slog.String("error", err.Error()),
				)
			}
		}); err != nil {
			return fmt.Errorf("pipeline: schedule %s: %w", name, err)
		}
		k.logger.InfoContext(ctx, "keeper job scheduled", slog.String("job", name), slog.String("cron", j.spec))
	}

	c.Start()
	<-ctx.Done()
	k.logger.Info("keeper stopping")
	<-c.Stop().Done()
	return ctx.Err()
}

func (k *Keeper) execute(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	start := time.Now()
	err := j.run(ctx)
	d := time.Since(start)
	if k.onJob != nil {
		k.onJob(j.name, d, err)
	}
	if err == nil {
		k.logger.InfoContext(ctx, "keeper job done", slog.String("job", j.name), slog.Duration("took", d))
	}
	return err
}

func (k *Keeper) emit(ctx context.Context, ev domain.Event) {
	for _, s := range k.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			k.logger.WarnContext(ctx, "phase event dropped",
				slog.String("sink", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func phaseEvent(ch service.PhaseChange) domain.Event {
	return domain.Event{
		Type:     domain.EventPhaseChange,
		MarketID: ch.MarketID,
		Metadata: map[string]any{
			"from":     ch.From.String(),
			"to":       ch.To.String(),
			"question": ch.Market.Question,
		},
		At: time.Now(),
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
