package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/bizcore/internal/rbac"
	"github.com/charlesng35/bizcore/pkg/logger"
)

const (
	defaultAuditRetentionDays = 365
	defaultSweepSpec          = "@hourly"
	defaultReconcileSpec      = "@daily"
	defaultAuditSpec          = "@daily"
)

// InvitationSweeper marks pending invitations past their expiry as expired.
type InvitationSweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// ReconcileAuditor verifies derived permission state and repairs drift.
type ReconcileAuditor interface {
	AuditAll(ctx context.Context) (rbac.AuditReport, error)
}

// AuditPruner enforces audit log retention.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// Scheduler runs housekeeping jobs on cron schedules. A nil dependency or an
// empty schedule disables the corresponding job.
type Scheduler struct {
	invitations InvitationSweeper
	reconciler  ReconcileAuditor
	audit       AuditPruner
	cron        *cron.Cron
	log         *zap.Logger
	retention   int

	sweepSchedule     string
	reconcileSchedule string
	auditSchedule     string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.retention = days
		}
	}
}

// WithSchedules overrides the cron specifications. Empty values disable a job.
func WithSchedules(sweep, reconcile, audit string) Option {
	return func(s *Scheduler) {
		s.sweepSchedule = sweep
		s.reconcileSchedule = reconcile
		s.auditSchedule = audit
	}
}

// NewScheduler constructs a Scheduler with the default schedules.
func NewScheduler(invitations InvitationSweeper, reconciler ReconcileAuditor, audit AuditPruner, opts ...Option) *Scheduler {
	s := &Scheduler{
		invitations:       invitations,
		reconciler:        reconciler,
		audit:             audit,
		retention:         defaultAuditRetentionDays,
		sweepSchedule:     defaultSweepSpec,
		reconcileSchedule: defaultReconcileSpec,
		auditSchedule:     defaultAuditSpec,
		log:               logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	var jobs []job
	if s.invitations != nil {
		jobs = append(jobs, job{name: "invitation_sweep", schedule: s.sweepSchedule, run: s.sweepInvitations})
	}
	if s.reconciler != nil {
		jobs = append(jobs, job{name: "reconcile_audit", schedule: s.reconcileSchedule, run: s.auditPermissions})
	}
	if s.audit != nil {
		jobs = append(jobs, job{name: "audit_retention", schedule: s.auditSchedule, run: s.pruneAudit})
	}
	return jobs
}

// Start registers the enabled jobs and launches the scheduler.
func (s *Scheduler) Start() error {
	registered := 0
	for _, j := range s.jobs() {
		if j.schedule == "" {
			continue
		}
		j := j
		if _, err := s.cron.AddFunc(j.schedule, func() {
			if err := j.run(context.Background()); err != nil {
				s.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
		registered++
	}
	if registered > 0 {
		s.cron.Start()
	}
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every configured job sequentially regardless of schedule.
// Failures do not stop later jobs.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, j := range s.jobs() {
		if err := j.run(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errs
}

func (s *Scheduler) sweepInvitations(ctx context.Context) error {
	expired, err := s.invitations.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("expired stale invitations", zap.Int64("count", expired))
	}
	return nil
}

func (s *Scheduler) auditPermissions(ctx context.Context) error {
	report, err := s.reconciler.AuditAll(ctx)
	if report.Repaired > 0 {
		s.log.Warn("repaired permission drift",
			zap.Int("checked", report.Checked),
			zap.Int("repaired", report.Repaired),
		)
	}
	return err
}

func (s *Scheduler) pruneAudit(ctx context.Context) error {
	removed, err := s.audit.CleanupOlderThan(ctx, s.retention)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.log.Info("pruned audit log", zap.Int64("count", removed), zap.Int("retention_days", s.retention))
	}
	return nil
}
