package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// ledgerArchive moves ledger entries past the retention horizon into cold
// storage.
type ledgerArchive interface {
	ArchiveOlderThan(ctx context.Context, days int) (int64, error)
}

// RetentionSweeper archives audit ledger entries past the retention horizon.
// The sweep moves rows into the archive table; nothing destroys a ledger
// entry, and the commit path never touches existing rows.
type RetentionSweeper struct {
	archive     ledgerArchive
	defaultDays int
	logger      *slog.Logger
	metrics     *Metrics
}

// NewRetentionSweeper builds a RetentionSweeper. Metrics may be nil.
func NewRetentionSweeper(archive ledgerArchive, defaultDays int, logger *slog.Logger, metrics *Metrics) *RetentionSweeper {
	return &RetentionSweeper{archive: archive, defaultDays: defaultDays, logger: logger, metrics: metrics}
}

// HandleRetentionSweepTask processes TaskAuditRetentionSweep tasks.
func (s *RetentionSweeper) HandleRetentionSweepTask(ctx context.Context, t *asynq.Task) error {
	tracker := s.metrics.Track("audit_retention_sweep")
	var payload RetentionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.RetentionDays
	if days <= 0 {
		days = s.defaultDays
	}
	archived, err := s.archive.ArchiveOlderThan(ctx, days)
	if err != nil {
		return tracker.End(err)
	}
	s.logger.Info("audit retention sweep", slog.Int("days", days), slog.Int64("archived", archived))
	return tracker.End(nil)
}
