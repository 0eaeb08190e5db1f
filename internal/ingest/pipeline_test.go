package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/smart-captures/internal/classifier"
	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/dedup"
	"github.com/Veraticus/smart-captures/internal/metrics"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/queue"
	"github.com/Veraticus/smart-captures/internal/relay"
	"github.com/Veraticus/smart-captures/internal/service"
	"github.com/Veraticus/smart-captures/internal/storage"
	"github.com/Veraticus/smart-captures/internal/testutil"
)

type fixture struct {
	kv       service.KV
	clock    *testutil.StubClock
	queue    *queue.Queue
	history  *dedup.History
	metrics  *metrics.Metrics
	pipeline *Pipeline
}

func newFixture(t *testing.T, cfg Config, kv service.KV, c classifier.Classifier) *fixture {
	t.Helper()
	if kv == nil {
		kv = storage.NewMemoryKV()
	}
	logger := common.DiscardLogger()
	clock := testutil.FixedClock()
	q := queue.New(kv, "", clock, logger)
	require.NoError(t, q.Load(context.Background()))
	h := dedup.New(kv, "", 0, logger)
	m := metrics.New(prometheus.NewRegistry())

	return &fixture{
		kv:      kv,
		clock:   clock,
		queue:   q,
		history: h,
		metrics: m,
		pipeline: New(cfg, Deps{
			History:    h,
			Queue:      q,
			Classifier: c,
			Clock:      clock,
			Metrics:    m,
			Logger:     logger,
		}),
	}
}

func TestPipeline_QueuesBankMessage(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	msg := testutil.NewMessage(testutil.BodyZomatoDebit).Ago(time.Hour).Build()
	outcome, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)

	pending := f.queue.ListPending()
	require.Len(t, pending, 1)
	c := pending[0]
	assert.True(t, decimal.RequireFromString("1250.50").Equal(c.Amount))
	assert.Equal(t, "Zomato on 05-01-2024", c.SuggestedTitle)
	assert.True(t, c.OccurredAt.Equal(msg.ObservedAt))
	assert.Empty(t, c.SuggestedCategory, "suggestion is deferred by default")

	assert.InDelta(t, 1, promtestutil.ToFloat64(f.metrics.IngestTotal.WithLabelValues(string(OutcomeQueued))), 1e-9)
	assert.InDelta(t, 1, promtestutil.ToFloat64(f.metrics.PendingCandidates), 1e-9)
}

func TestPipeline_StalenessBoundary(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want Outcome
	}{
		{name: "29 days", age: 29 * 24 * time.Hour, want: OutcomeQueued},
		{name: "exactly 30 days", age: 30 * 24 * time.Hour, want: OutcomeQueued},
		{name: "30 days and a second", age: 30*24*time.Hour + time.Second, want: OutcomeStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, nil, nil)
			msg := testutil.NewMessage(testutil.BodyUberUPI).Ago(tt.age).Build()
			outcome, err := f.pipeline.Process(context.Background(), msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestPipeline_MissingTimestampSkipsStaleness(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	msg := testutil.NewMessage(testutil.BodyUberUPI).WithoutTimestamp().Build()

	outcome, err := f.pipeline.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)

	c := f.queue.ListPending()[0]
	assert.True(t, c.OccurredAt.Equal(f.clock.Now()), "occurred-at falls back to now")
}

func TestPipeline_Deduplicates(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	msg := testutil.NewMessage(testutil.BodyZomatoDebit).Build()
	first, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	second, err := f.pipeline.Process(ctx, msg)
	require.NoError(t, err)

	assert.Equal(t, OutcomeQueued, first)
	assert.Equal(t, OutcomeDuplicate, second)
	assert.Len(t, f.queue.List(), 1)

	// Same body from a different sender is a different message.
	other := testutil.NewMessage(testutil.BodyZomatoDebit).From("AX-ICICIB").Build()
	outcome, err := f.pipeline.Process(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)
}

func TestPipeline_BoundedHistoryAllowsReprocessing(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	body := func(i int) string { return fmt.Sprintf("Rs %d debited at Shop%d", i, i) }
	for i := 1; i <= 60; i++ {
		outcome, err := f.pipeline.Process(ctx, testutil.NewMessage(body(i)).Build())
		require.NoError(t, err)
		require.Equal(t, OutcomeQueued, outcome)
	}

	outcome, err := f.pipeline.Process(ctx, testutil.NewMessage(body(1)).Build())
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome, "evicted fingerprints are processed again")

	outcome, err = f.pipeline.Process(ctx, testutil.NewMessage(body(60)).Build())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestPipeline_RequiresAmount(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	outcome, err := f.pipeline.Process(context.Background(), testutil.NewMessage(testutil.BodyOTP).Build())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAmount, outcome)
	assert.Empty(t, f.queue.List())
}

func TestPipeline_EmptyBody(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	outcome, err := f.pipeline.Process(context.Background(), testutil.NewMessage("  ").Build())
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, outcome)
}

func TestPipeline_SuggestCategoryAtIngest(t *testing.T) {
	f := newFixture(t, Config{SuggestCategory: true, MinConfidence: 0.8}, nil, classifier.NewKeyword())
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, testutil.NewMessage(testutil.BodyZomatoDebit).Build())
	require.NoError(t, err)
	// A bare small amount only reaches 0.55, under the threshold.
	_, err = f.pipeline.Process(ctx, testutil.NewMessage("Rs 120 debited from a/c").Build())
	require.NoError(t, err)

	list := f.queue.List()
	require.Len(t, list, 2)
	assert.Empty(t, list[0].SuggestedCategory)
	assert.Equal(t, model.CategoryFood, list[1].SuggestedCategory)
}

type failingQueueKV struct {
	*storage.MemoryKV
	failKey string
}

func (f *failingQueueKV) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryKV.Update(ctx, key, fn)
}

func TestPipeline_QueueFailureIsReported(t *testing.T) {
	kv := &failingQueueKV{MemoryKV: storage.NewMemoryKV(), failKey: queue.DefaultKey}
	f := newFixture(t, Config{}, kv, nil)

	outcome, err := f.pipeline.Process(context.Background(), testutil.NewMessage(testutil.BodyUberUPI).Build())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

type panickyClassifier struct{}

func (panickyClassifier) Classify(context.Context, string, *decimal.Decimal) model.Suggestion {
	panic("classifier exploded")
}

func TestPipeline_BatchIsolatesFailures(t *testing.T) {
	f := newFixture(t, Config{SuggestCategory: true}, nil, panickyClassifier{})
	ctx := context.Background()

	msgs := []model.RawMessage{
		testutil.NewMessage(testutil.BodyOTP).Build(),
		testutil.NewMessage(testutil.BodyZomatoDebit).Build(),
		testutil.NewMessage(testutil.BodyUberUPI).Ago(40 * 24 * time.Hour).Build(),
	}

	var progress []int
	result := f.pipeline.ProcessBatch(ctx, msgs, func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	})

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Count(OutcomeNoAmount))
	assert.Equal(t, 1, result.Count(OutcomeFailed))
	assert.Equal(t, 1, result.Count(OutcomeStale))
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestPipeline_DrainAndIngest(t *testing.T) {
	kv := storage.NewMemoryKV()
	f := newFixture(t, Config{}, kv, nil)
	ctx := context.Background()
	r := relay.New(kv, "", common.DiscardLogger())

	zomato := testutil.NewMessage(testutil.BodyZomatoDebit).Build()
	r.Append(ctx, zomato)
	r.Append(ctx, testutil.NewMessage(testutil.BodyRentTransfer).Build())
	r.Append(ctx, zomato)

	result := f.pipeline.DrainAndIngest(ctx, r, nil)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Count(OutcomeQueued))
	assert.Equal(t, 1, result.Count(OutcomeDuplicate))
	require.Len(t, result.Queued, 2)
	assert.InDelta(t, 3, promtestutil.ToFloat64(f.metrics.RelayDrained), 1e-9)

	again := f.pipeline.DrainAndIngest(ctx, r, nil)
	assert.Equal(t, 0, again.Total)
}

func TestPipeline_BatchSurvivesCancellation(t *testing.T) {
	f := newFixture(t, Config{}, testutil.SetupTestDB(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.pipeline.ProcessBatch(ctx, []model.RawMessage{
		testutil.NewMessage(testutil.BodyZomatoDebit).Build(),
	}, nil)
	assert.Equal(t, 1, result.Count(OutcomeQueued))
}
