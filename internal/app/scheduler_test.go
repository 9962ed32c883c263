package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type refresherStub struct {
	calls int
	err   error
}

func (r *refresherStub) Refresh(ctx context.Context) error {
	r.calls++
	return r.err
}

func TestScheduler_WarmCatalog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ok := &refresherStub{}
	NewScheduler(ok, logger, "@every 5m").WarmCatalog()
	assert.Equal(t, 1, ok.calls)

	failing := &refresherStub{err: errors.New("stripe down")}
	NewScheduler(failing, logger, "@every 5m").WarmCatalog()
	assert.Equal(t, 1, failing.calls)
}

func TestScheduler_StartRejectsInvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(&refresherStub{}, logger, "not a schedule")

	assert.Error(t, s.Start())
}
