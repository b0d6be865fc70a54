package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// DefaultWindow caps how many recent entries a query fetches before
// filtering.
const DefaultWindow = 200

// SortOrder toggles the time ordering of query results.
type SortOrder string

const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

// QueryFilters are conjunctive, case-insensitive substring predicates.
type QueryFilters struct {
	AdminNameContains  string
	TargetNameContains string
	ActionTypeContains string
	Sort               SortOrder
	Limit              int
}

// RepositoryPort provides ledger persistence.
type RepositoryPort interface {
	Append(ctx context.Context, entry Entry) error
	RecentWindow(ctx context.Context, limit int) ([]Entry, error)
}

// Service reads and writes the privilege change ledger.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Append writes one entry. A failed append must never be reported as
// success: the change coordinator maps it to its distinct audit-failure
// reason.
func (s *Service) Append(ctx context.Context, entry Entry) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	if entry.AdminID == "" || entry.TargetName == "" || entry.ActionType == "" {
		return fmt.Errorf("audit: entry requires admin/target/action")
	}
	return s.repo.Append(ctx, entry)
}

// Query fetches the newest Limit entries (capped at DefaultWindow) and then
// applies the filters over that window only. Matches older than the window
// are not fetched retroactively; this is a deliberate bounded-recency policy,
// so results are recent matches, not an exhaustive history search.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	limit := filters.Limit
	if limit <= 0 || limit > DefaultWindow {
		limit = DefaultWindow
	}
	window, err := s.repo.RecentWindow(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(window))
	for _, entry := range window {
		if !matches(entry, filters) {
			continue
		}
		out = append(out, entry)
	}
	// The window arrives oldest first with ties in insertion order; the
	// stable sort preserves that order inside equal timestamps either way.
	if filters.Sort == SortDescending || filters.Sort == "" {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out, nil
}

func matches(entry Entry, filters QueryFilters) bool {
	return containsFold(entry.AdminName, filters.AdminNameContains) &&
		containsFold(entry.TargetName, filters.TargetNameContains) &&
		containsFold(string(entry.ActionType), filters.ActionTypeContains)
}

func containsFold(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}
