package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-erp/internal/catalog"
)

// IntegrityScanner walks persisted permission sets and reports ids the
// catalog no longer knows. Orphans appear when a deployment removes a catalog
// entry that roles or overrides still carry; the scan keeps the invariant
// visible instead of letting it rot silently.
type IntegrityScanner struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *Metrics
}

// NewIntegrityScanner builds an IntegrityScanner. Metrics may be nil.
func NewIntegrityScanner(pool *pgxpool.Pool, logger *slog.Logger, metrics *Metrics) *IntegrityScanner {
	return &IntegrityScanner{pool: pool, logger: logger, metrics: metrics}
}

// Violation names one orphaned permission id.
type Violation struct {
	Source string
	Name   string
	Perm   string
}

// Scan reports every orphaned permission id across roles and staff overrides.
func (s *IntegrityScanner) Scan(ctx context.Context) ([]Violation, error) {
	var violations []Violation

	roleRows, err := s.pool.Query(ctx, `SELECT name, permissions FROM roles WHERE NOT is_deleted`)
	if err != nil {
		return nil, fmt.Errorf("jobs: integrity scan roles: %w", err)
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var name string
		var perms []string
		if err := roleRows.Scan(&name, &perms); err != nil {
			return nil, fmt.Errorf("jobs: integrity scan roles: %w", err)
		}
		for _, p := range perms {
			if !catalog.Exists(p) {
				violations = append(violations, Violation{Source: "role", Name: name, Perm: p})
			}
		}
	}
	if err := roleRows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: integrity scan roles: %w", err)
	}

	staffRows, err := s.pool.Query(ctx, `SELECT name, permissions FROM staff_members WHERE permissions IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("jobs: integrity scan staff: %w", err)
	}
	defer staffRows.Close()
	for staffRows.Next() {
		var name string
		var perms []string
		if err := staffRows.Scan(&name, &perms); err != nil {
			return nil, fmt.Errorf("jobs: integrity scan staff: %w", err)
		}
		for _, p := range perms {
			if !catalog.Exists(p) {
				violations = append(violations, Violation{Source: "override", Name: name, Perm: p})
			}
		}
	}
	if err := staffRows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: integrity scan staff: %w", err)
	}

	return violations, nil
}

// HandleIntegrityScanTask processes TaskAuthzIntegrityScan tasks.
func (s *IntegrityScanner) HandleIntegrityScanTask(ctx context.Context, t *asynq.Task) error {
	tracker := s.metrics.Track("authz_integrity_scan")
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	violations, err := s.Scan(ctx)
	if err != nil {
		return tracker.End(err)
	}
	perSource := make(map[string]int)
	for _, v := range violations {
		perSource[v.Source]++
		s.logger.Warn("orphaned permission id",
			slog.String("source", v.Source),
			slog.String("name", v.Name),
			slog.String("permission", v.Perm),
		)
	}
	for source, count := range perSource {
		s.metrics.AddViolations(source, count)
	}
	if len(violations) > 0 && !payload.ReportOnly {
		return tracker.End(fmt.Errorf("jobs: %d orphaned permission ids", len(violations)))
	}
	s.logger.Info("integrity scan complete", slog.Int("violations", len(violations)))
	return tracker.End(nil)
}
