package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// ClassifyError maps transport-level driver failures onto the shared
// sentinels so handlers can answer 504/503 instead of a blanket 500. Errors
// it does not recognize pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
	}
	return err
}
