package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// AuditPruner deletes audit rows older than a cutoff.
type AuditPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveReport summarises one cleanup run.
type ArchiveReport struct {
	Cutoff          time.Time
	HistoryArchived int64
	AuditPruned     int64
}

// Archiver moves history older than the retention window to cold storage and
// prunes the audit log behind it.
type Archiver struct {
	blobArchiver  domain.Archiver
	audit         AuditPruner
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. blobArchiver and audit may be nil, in
// which case that half of the run is skipped.
func NewArchiver(blobArchiver domain.Archiver, audit AuditPruner, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Archiver{
		blobArchiver:  blobArchiver,
		audit:         audit,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff returns the retention boundary relative to now.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive run. History is archived first; audit rows are
// pruned only once the archive succeeded.
func (a *Archiver) Run(ctx context.Context) (ArchiveReport, error) {
	report := ArchiveReport{Cutoff: a.Cutoff()}
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", report.Cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	if a.blobArchiver != nil {
		n, err := a.blobArchiver.ArchiveHistory(ctx, report.Cutoff)
		if err != nil {
			return report, fmt.Errorf("pipeline: archiving history before %v: %w", report.Cutoff, err)
		}
		report.HistoryArchived = n
	}

	if a.audit != nil {
		n, err := a.audit.DeleteBefore(ctx, report.Cutoff)
		if err != nil {
			return report, fmt.Errorf("pipeline: pruning audit before %v: %w", report.Cutoff, err)
		}
		report.AuditPruned = n
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("history_archived", report.HistoryArchived),
		slog.Int64("audit_pruned", report.AuditPruned),
	)
	return report, nil
}
