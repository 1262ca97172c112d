package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/internal/repository/memory"
	"github.com/jwalitptl/careportal-api/internal/service/event"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/messaging/redis"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
)

func TestTokenReaper_DeletesOnlyPastGrace(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, exp := range []time.Time{
		now.Add(-48 * time.Hour),
		now.Add(-2 * time.Hour),
		now.Add(time.Hour),
	} {
		require.NoError(t, store.Tokens().Create(ctx, &model.OpaqueToken{
			Kind:      model.TokenApproval,
			Email:     "p@x.com",
			Token:     uuid.NewString(),
			ExpiresAt: exp,
		}))
	}

	m := metrics.New("test")
	reaper := NewTokenReaper(store.Tokens(), time.Hour, 24*time.Hour, logger.Nop(), m)
	reaper.now = func() time.Time { return now }

	n, err := reaper.Reap(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensReaped))

	n, err = reaper.Reap(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type mockTokens struct {
	mock.Mock
	repository.TokenRepository
}

func (m *mockTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func TestTokenReaper_StartStopsOnCancel(t *testing.T) {
	called := make(chan struct{}, 1)
	tokens := &mockTokens{}
	tokens.On("DeleteExpired", mock.Anything, mock.Anything).
		Return(int64(0), errors.New("db down")).
		Run(func(mock.Arguments) {
			select {
			case called <- struct{}{}:
			default:
			}
		})

	reaper := NewTokenReaper(tokens, time.Hour, time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Start(ctx)
		close(done)
	}()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never ran")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestEventRecorder_LogsPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	broker, err := redis.NewRedisBroker(ctx, redis.Config{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	defer broker.Close()

	var buf syncBuffer
	recorder := NewEventRecorder(broker, "careportal.events", logger.NewLogger(&logger.Config{
		Level:  logger.InfoLevel,
		Output: &buf,
		JSON:   true,
	}))
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = recorder.Start(runCtx) }()

	publisher := event.NewPublisher(broker, "careportal.events", logger.Nop())
	subject := uuid.New()
	require.Eventually(t, func() bool {
		publisher.Publish(ctx, model.EventAccountActivated, subject, nil, map[string]interface{}{"source": "test"})
		return bytes.Contains(buf.Bytes(), []byte(subject.String()))
	}, 3*time.Second, 50*time.Millisecond)

	line := firstLine(t, buf.Bytes(), subject.String())
	assert.Equal(t, model.EventAccountActivated, line["event_type"])
	assert.Equal(t, "test", line["data_source"])
}

func TestEventRecorder_RejectsMalformed(t *testing.T) {
	r := NewEventRecorder(nil, "events", nil)
	assert.Error(t, r.Handle(context.Background(), []byte("not json")))
	assert.Error(t, r.Handle(context.Background(), []byte(`{"payload":{}}`)))
}

func firstLine(t *testing.T, out []byte, needle string) map[string]interface{} {
	t.Helper()
	for _, raw := range bytes.Split(out, []byte("\n")) {
		if !bytes.Contains(raw, []byte(needle)) {
			continue
		}
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &line))
		return line
	}
	t.Fatalf("no log line containing %s", needle)
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
