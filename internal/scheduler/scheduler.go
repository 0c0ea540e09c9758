package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	activitydomain "github.com/smallbiznis/crmbilling/internal/activity/domain"
	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/fault"
	obsmetrics "github.com/smallbiznis/crmbilling/internal/observability/metrics"
	reminderdomain "github.com/smallbiznis/crmbilling/internal/reminder/domain"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig = errors.New("scheduler_invalid_config")
	ErrJobRunning    = fault.Conflict("sweep_already_running")
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	CompanyRepo     companydomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	ReminderSvc     reminderdomain.Service
	Activity        activitydomain.Sink `optional:"true"`
	Locker          Locker              `optional:"true"`
	Config          Config              `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	companyRepo     companydomain.Repository
	subscriptionSvc subscriptiondomain.Service
	reminderSvc     reminderdomain.Service
	activity        activitydomain.Sink
	locker          Locker

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// ExpiryResult is the outcome of one expiry sweep.
type ExpiryResult struct {
	Deactivated int `json:"deactivated_count"`
	Failed      int `json:"failed_count"`
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.CompanyRepo == nil || p.SubscriptionSvc == nil || p.ReminderSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		companyRepo:     p.CompanyRepo,
		subscriptionSvc: p.SubscriptionSvc,
		reminderSvc:     p.ReminderSvc,
		activity:        p.Activity,
		locker:          p.Locker,
	}, nil
}

// runJob wraps fn with the job timeout, the distributed lock, run logging and
// metrics. A timeout is logged and not returned.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	schedMetrics := obsmetrics.Scheduler()

	token, locked, err := s.acquire(parent, name)
	if err != nil {
		schedMetrics.IncJobError(name, err)
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	if !locked {
		schedMetrics.IncSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		s.log.Info("job skipped, lock held elsewhere", zap.String("job", name))
		return ErrJobRunning
	}
	defer s.release(name, token)

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err = fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) acquire(ctx context.Context, job string) (string, bool, error) {
	if s.locker == nil {
		return "", true, nil
	}
	return s.locker.TryLock(ctx, lockKey(job), s.cfg.LockTTL)
}

func (s *Scheduler) release(job, token string) {
	if s.locker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.Release(ctx, lockKey(job), token); err != nil {
		s.log.Warn("release job lock failed", zap.String("job", job), zap.Error(err))
	}
}

// RunExpirySweep deactivates every tenant whose subscription has lapsed.
func (s *Scheduler) RunExpirySweep(ctx context.Context) (ExpiryResult, error) {
	var result ExpiryResult
	err := s.runJob(ctx, JobExpirySweep, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.expirySweep(ctx)
		return err
	})
	if err == nil {
		s.recordActivity(ctx, fmt.Sprintf("Expiry sweep deactivated %d companies", result.Deactivated), result.Failed, map[string]any{
			"job":               JobExpirySweep,
			"deactivated_count": result.Deactivated,
			"failed_count":      result.Failed,
		})
	}
	return result, err
}

// RunReminderSweep sends the payment reminders that are due.
func (s *Scheduler) RunReminderSweep(ctx context.Context) (reminderdomain.SweepResult, error) {
	var result reminderdomain.SweepResult
	err := s.runJob(ctx, JobReminderSweep, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.reminderSvc.Sweep(ctx)
		jobRunFromContext(ctx).AddProcessed(result.Sent)
		return err
	})
	if err == nil {
		s.recordActivity(ctx, fmt.Sprintf("Reminder sweep sent %d reminders", result.Sent), result.Failed, map[string]any{
			"job":           JobReminderSweep,
			"sent_count":    result.Sent,
			"skipped_count": result.Skipped,
			"failed_count":  result.Failed,
			"overdue_count": result.Overdue,
		})
	}
	return result, err
}

func (s *Scheduler) recordActivity(ctx context.Context, message string, failed int, metadata map[string]any) {
	if s.activity == nil {
		return
	}
	level := activitydomain.LevelInfo
	if failed > 0 {
		level = activitydomain.LevelWarning
	}
	ctx = s.withLogContext(context.WithoutCancel(ctx), 0)
	if err := s.activity.Record(ctx, level, activitydomain.CategoryScheduler, message, 0, metadata); err != nil {
		s.log.Warn("record sweep activity failed", zap.Error(err))
	}
}

// RunOnce runs every enabled job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	if s.isJobEnabled(JobExpirySweep) {
		_, jobErr := s.RunExpirySweep(ctx)
		err = errors.Join(err, ignoreLockHeld(jobErr))
	}
	if s.isJobEnabled(JobReminderSweep) {
		_, jobErr := s.RunReminderSweep(ctx)
		err = errors.Join(err, ignoreLockHeld(jobErr))
	}
	return err
}

// Start registers the sweeps on their cron schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())

	schedules := []struct {
		job  string
		spec string
		run  func(context.Context) error
	}{
		{JobExpirySweep, s.cfg.ExpiryCron, func(ctx context.Context) error {
			_, err := s.RunExpirySweep(ctx)
			return err
		}},
		{JobReminderSweep, s.cfg.ReminderCron, func(ctx context.Context) error {
			_, err := s.RunReminderSweep(ctx)
			return err
		}},
	}
	for _, sc := range schedules {
		if !s.isJobEnabled(sc.job) {
			continue
		}
		job, run := sc.job, sc.run
		if _, err := c.AddFunc(sc.spec, func() {
			if err := ignoreLockHeld(run(ctx)); err != nil {
				s.log.Warn("scheduled job failed", zap.String("job", job), zap.Error(err))
			}
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule %s %q: %w", job, sc.spec, err)
		}
		s.log.Info("job scheduled", zap.String("job", job), zap.String("spec", sc.spec))
	}

	c.Start()
	s.cron, s.cancel = c, cancel
	return nil
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func ignoreLockHeld(err error) error {
	if errors.Is(err, ErrJobRunning) {
		return nil
	}
	return err
}
