package application

import (
	"context"
	"errors"
	"testing"
	"time"

	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingBuilder struct {
	dates   []time.Time
	options []BatchOptions
	err     error
}

func (b *recordingBuilder) Build(_ context.Context, date time.Time, options BatchOptions) (string, error) {
	b.dates = append(b.dates, date)
	b.options = append(b.options, options)
	if b.err != nil {
		return "", b.err
	}
	return "/srv/ach/" + date.Format("2006-01-02") + "/run-001.csv", nil
}

func TestBatchScheduler_RunOnceBuildsPreviousUTCDay(t *testing.T) {
	builder := &recordingBuilder{}
	scheduler := NewBatchScheduler(builder, "5 0 * * *", 3, zap.NewNop())
	scheduler.now = fixedClock(time.Date(2024, time.March, 6, 0, 5, 0, 0, time.FixedZone("UTC+2", 2*60*60)))

	require.NoError(t, scheduler.RunOnce(context.Background()))
	require.Len(t, builder.dates, 1)
	assert.Equal(t, "2024-03-04", builder.dates[0].Format("2006-01-02"))
	assert.Equal(t, time.UTC, builder.dates[0].Location())
	assert.Equal(t, BatchOptions{RunNumber: 3}, builder.options[0])
}

func TestBatchScheduler_RunOncePropagatesErrors(t *testing.T) {
	for _, want := range []error{paymentErrors.ErrEmptyBatch, paymentErrors.ErrRunExists, errors.New("disk full")} {
		builder := &recordingBuilder{err: want}
		scheduler := NewBatchScheduler(builder, "@daily", 1, zap.NewNop())
		assert.ErrorIs(t, scheduler.RunOnce(context.Background()), want)
	}
}

func TestBatchScheduler_StartRejectsInvalidSchedule(t *testing.T) {
	scheduler := NewBatchScheduler(&recordingBuilder{}, "every other tuesday", 1, zap.NewNop())
	assert.Error(t, scheduler.Start())
}

func TestBatchScheduler_StartAndStop(t *testing.T) {
	scheduler := NewBatchScheduler(&recordingBuilder{}, "@daily", 1, zap.NewNop())
	require.NoError(t, scheduler.Start())

	select {
	case <-scheduler.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
