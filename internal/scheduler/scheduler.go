package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/lock"
	obsmetrics "github.com/smallbiznis/comptoir/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/comptoir/internal/tenant/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobExpireTenants = "expire_tenants"

	lockKeyPrefix = "comptoir:scheduler:"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	Tenants tenantdomain.Service
	Locker  *lock.Locker `optional:"true"`
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	tenants tenantdomain.Service
	locker  *lock.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Tenants == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		tenants: p.Tenants,
		locker:  p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	schedMetrics := obsmetrics.Scheduler()

	token, acquired, err := s.locker.TryLock(parent, lockKeyPrefix+name, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("scheduler lock unavailable, running unguarded", zap.String("job", name), zap.Error(err))
		acquired = true
	}
	if !acquired {
		schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		s.log.Debug("job skipped, lock held elsewhere", zap.String("job", name))
		return nil
	}
	if token != "" {
		defer func() {
			if err := s.locker.Release(context.Background(), lockKeyPrefix+name, token); err != nil {
				s.log.Warn("failed to release scheduler lock", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, span := otel.Tracer("comptoir/scheduler").Start(ctx, "scheduler."+name)
	defer span.End()

	ctx, run := s.newJobRun(ctx, name)
	span.SetAttributes(attribute.String("scheduler.job", name), attribute.String("scheduler.run_id", run.runID))
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(zap.String("job", name))
	schedMetrics.IncJobRun(name)

	err = fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil && run.errorCount == 0 {
		run.AddErrors(1)
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	// deadline is a soft timeout: the next tick picks up what is left
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

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context, *jobRun) error
	}{
		{JobExpireTenants, s.ExpireTenantsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty list enables every job
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

// ExpireTenantsJob flips every active tenant past its subscription end to
// expired. Per-tenant failures do not stop the run but fail the job.
func (s *Scheduler) ExpireTenantsJob(ctx context.Context, run *jobRun) error {
	result, err := s.tenants.ExpireOverdue(ctx)
	run.AddProcessed(result.Processed)
	run.AddErrors(result.Failed)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobExpireTenants, "succeeded", result.Succeeded)
	schedMetrics.AddBatchProcessed(JobExpireTenants, "failed", result.Failed)

	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d tenants failed to expire", result.Failed, result.Processed)
	}
	return nil
}
