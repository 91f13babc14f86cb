package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/observability/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// finalize commits entries one transaction at a time, parents first.
func (s *Service) finalize(ctx context.Context, entries []domain.Entry, cfg config.ImportConfig) *domain.Report {
	runID := ulid.Make().String()
	start := s.clock.Now()

	ctx, span := s.tracer.Start(ctx, "importer.finalize")
	defer span.End()
	log := logger.WithRun(logger.WithContext(ctx, s.log), runID)
	span.SetAttributes(attribute.String("import.run_id", runID), attribute.Int("import.entries", len(entries)))

	ordered := make([]domain.Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rankOf(ordered[i].Entity), rankOf(ordered[j].Entity)
		if ri != rj {
			return ri < rj
		}
		return ordered[i].Index < ordered[j].Index
	})

	report := &domain.Report{
		RunID:        runID,
		Success:      true,
		Errors:       []domain.EntryError{},
		DetailedLogs: []string{},
	}
	r := newResolver(s.repo, modeFinalize, cfg.DateFormats)

	for _, entry := range ordered {
		label := fmt.Sprintf("%s %q", entry.Entity, entry.Identifier)
		if entry.Action == domain.ActionSkip {
			report.SkippedCount++
			report.DetailedLogs = append(report.DetailedLogs, "skipped "+label)
			s.metrics.ObserveFinalized(string(entry.Entity), "skipped")
			continue
		}

		if err := ctx.Err(); err != nil {
			s.abort(log, report, entry, err)
			break
		}

		result, err := s.finalizeEntry(ctx, r, entry)
		if err != nil {
			if isCritical(err) {
				s.abort(log, report, entry, err)
				break
			}
			report.ErrorCount++
			report.Errors = append(report.Errors, domain.EntryError{Identifier: entry.Identifier, Entity: entry.Entity, Message: err.Error()})
			report.DetailedLogs = append(report.DetailedLogs, fmt.Sprintf("failed %s: %v", label, err))
			s.metrics.ObserveFinalized(string(entry.Entity), "failed")
			entryLog(log, entry).Warn("import entry failed", zap.String("outcome", "failed"), zap.Error(err))
			continue
		}

		outcome := "unchanged"
		switch {
		case result.added:
			outcome = "added"
			report.Added++
		case result.changed:
			outcome = "updated"
			report.Updated++
		}
		report.SuccessCount++
		report.DetailedLogs = append(report.DetailedLogs, fmt.Sprintf("%s %s", outcome, label))
		for _, note := range result.notes {
			report.DetailedLogs = append(report.DetailedLogs, fmt.Sprintf("  %s: %s", label, note))
		}
		s.metrics.ObserveFinalized(string(entry.Entity), outcome)
		entryLog(log, entry).Info("import entry finalized", zap.String("outcome", outcome))
	}

	elapsed := s.clock.Now().Sub(start)
	s.metrics.ObserveFinalizeDuration(report.Success, elapsed)
	if !report.Success {
		span.SetStatus(codes.Error, "critical failure")
	}
	log.Info("import finalized",
		zap.Bool("success", report.Success),
		zap.Int("success_count", report.SuccessCount),
		zap.Int("error_count", report.ErrorCount),
		zap.Int("skipped_count", report.SkippedCount),
		zap.Duration("elapsed", elapsed),
	)
	return report
}

func (s *Service) finalizeEntry(ctx context.Context, r *resolver, entry domain.Entry) (*writeResult, error) {
	spec, err := specOf(entry.Entity)
	if err != nil {
		return nil, err
	}

	var result *writeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.plan(ctx, tx, r, spec, entry.Input)
		if err != nil {
			return err
		}
		result, err = s.apply(ctx, tx, p, r.formats)
		return err
	})
	return result, err
}

func (s *Service) abort(log *zap.Logger, report *domain.Report, entry domain.Entry, err error) {
	report.Success = false
	report.ErrorCount++
	report.Errors = append(report.Errors, domain.EntryError{
		Identifier: entry.Identifier,
		Entity:     entry.Entity,
		Message:    fmt.Sprintf("%v: %v", domain.ErrCritical, err),
	})
	report.DetailedLogs = append(report.DetailedLogs, fmt.Sprintf("aborted at %s %q: %v", entry.Entity, entry.Identifier, err))
	s.metrics.IncCriticalFailure()
	s.metrics.ObserveFinalized(string(entry.Entity), "failed")
	entryLog(log, entry).Error("import aborted", zap.String("outcome", "aborted"), zap.Error(err))
}

func entryLog(log *zap.Logger, entry domain.Entry) *zap.Logger {
	return logger.WithEntry(log, string(entry.Entity), entry.Identifier, string(entry.Action))
}

// isCritical reports failures after which no further entry can commit.
func isCritical(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, domain.ErrCritical)
}

func rankOf(kind domain.EntityType) int {
	if spec, ok := specs[kind]; ok {
		return spec.rank
	}
	return len(specs)
}
