package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	days     []int
	archived int64
	err      error
}

func (f *fakeArchive) ArchiveOlderThan(_ context.Context, days int) (int64, error) {
	f.days = append(f.days, days)
	return f.archived, f.err
}

func TestRetentionSweepArchivesWithPayloadDays(t *testing.T) {
	archive := &fakeArchive{archived: 7}
	sweeper := NewRetentionSweeper(archive, 365, slog.Default(), nil)

	task, err := NewRetentionSweepTask(RetentionSweepPayload{RetentionDays: 30})
	require.NoError(t, err)

	require.NoError(t, sweeper.HandleRetentionSweepTask(context.Background(), task))
	require.Equal(t, []int{30}, archive.days)
}

func TestRetentionSweepFallsBackToDefaultDays(t *testing.T) {
	archive := &fakeArchive{}
	sweeper := NewRetentionSweeper(archive, 365, slog.Default(), nil)

	task, err := NewRetentionSweepTask(RetentionSweepPayload{})
	require.NoError(t, err)

	require.NoError(t, sweeper.HandleRetentionSweepTask(context.Background(), task))
	require.Equal(t, []int{365}, archive.days)
}

func TestRetentionSweepSkipsRetryOnBadPayload(t *testing.T) {
	archive := &fakeArchive{}
	sweeper := NewRetentionSweeper(archive, 365, slog.Default(), nil)

	task := asynq.NewTask(TaskAuditRetentionSweep, []byte("{"))
	err := sweeper.HandleRetentionSweepTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, archive.days)
}

func TestRetentionSweepPropagatesArchiveError(t *testing.T) {
	boom := errors.New("archive down")
	archive := &fakeArchive{err: boom}
	sweeper := NewRetentionSweeper(archive, 365, slog.Default(), nil)

	task, err := NewRetentionSweepTask(RetentionSweepPayload{RetentionDays: 10})
	require.NoError(t, err)

	require.ErrorIs(t, sweeper.HandleRetentionSweepTask(context.Background(), task), boom)
}
