package relay

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
	"github.com/Veraticus/smart-captures/internal/storage"
)

func newTestRelay(t *testing.T) (*Relay, service.KV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	return New(kv, "", common.DiscardLogger()), kv
}

func msg(sender, body string, ts int64) model.RawMessage {
	m := model.RawMessage{Sender: sender, Body: body}
	if ts > 0 {
		m.ObservedAt = time.UnixMilli(ts).UTC()
	}
	return m
}

func TestRelay_AppendThenDrain(t *testing.T) {
	r, _ := newTestRelay(t)
	ctx := context.Background()

	r.Append(ctx, msg("HDFC", "first", 1))
	r.Append(ctx, msg("ICICI", "second", 2))
	r.Append(ctx, msg("SBI", "third", 3))

	drained := r.DrainAll(ctx)
	require.Len(t, drained, 3)
	assert.Equal(t, "first", drained[0].Body)
	assert.Equal(t, "second", drained[1].Body)
	assert.Equal(t, "third", drained[2].Body)
	assert.Equal(t, "ICICI", drained[1].Sender)
}

func TestRelay_DrainIsIdempotent(t *testing.T) {
	r, _ := newTestRelay(t)
	ctx := context.Background()

	r.Append(ctx, msg("HDFC", "Rs 100 debited", 1))

	assert.Len(t, r.DrainAll(ctx), 1)
	assert.Empty(t, r.DrainAll(ctx))
	assert.Empty(t, r.DrainAll(ctx))
}

func TestRelay_DropsMessagesWithoutBody(t *testing.T) {
	r, kv := newTestRelay(t)
	ctx := context.Background()

	r.Append(ctx, msg("HDFC", "   ", 1))
	raw, err := kv.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Nil(t, raw, "nothing should be written for an empty body")

	// Entries written by other producers without a body are skipped on drain.
	require.NoError(t, kv.Set(ctx, DefaultKey, []byte(`[{"originatingAddress":"X","timestamp":5},{"body":"ok","timestamp":0}]`)))
	drained := r.DrainAll(ctx)
	require.Len(t, drained, 1)
	assert.Equal(t, "ok", drained[0].Body)
	assert.False(t, drained[0].HasTimestamp())
}

func TestRelay_CorruptContents(t *testing.T) {
	r, kv := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, DefaultKey, []byte(`{not json`)))

	_, err := r.Peek(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)

	assert.Empty(t, r.DrainAll(ctx))

	raw, err := kv.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	r.Append(ctx, msg("HDFC", "after reset", 1))
	drained := r.DrainAll(ctx)
	require.Len(t, drained, 1)
	assert.Equal(t, "after reset", drained[0].Body)
}

func TestRelay_AppendOverCorruptValue(t *testing.T) {
	r, kv := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, DefaultKey, []byte(`garbage`)))
	r.Append(ctx, msg("HDFC", "kept", 1))

	drained := r.DrainAll(ctx)
	require.Len(t, drained, 1)
	assert.Equal(t, "kept", drained[0].Body)
}

func TestRelay_PeekAndClear(t *testing.T) {
	r, _ := newTestRelay(t)
	ctx := context.Background()

	empty, err := r.Peek(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	r.Append(ctx, msg("HDFC", "one", 1))
	r.Append(ctx, msg("HDFC", "two", 2))

	peeked, err := r.Peek(ctx)
	require.NoError(t, err)
	assert.Len(t, peeked, 2)

	peeked, err = r.Peek(ctx)
	require.NoError(t, err)
	assert.Len(t, peeked, 2, "peek must not consume")

	require.NoError(t, r.Clear(ctx))
	assert.Empty(t, r.DrainAll(ctx))
}

func TestRelay_StoreFailuresAreSwallowed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mr := miniredis.RunT(t)
	kv, err := storage.NewRedisKV(context.Background(), storage.RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	r := New(kv, "", common.DiscardLogger())

	assert.NotPanics(t, func() {
		r.Append(ctx, msg("HDFC", "lost", 1))
		assert.Empty(t, r.DrainAll(ctx))
	})
}

// runConcurrentAppendDrain appends from several producers while a consumer
// drains, then checks every message came out exactly once.
func runConcurrentAppendDrain(t *testing.T, producers []*Relay, consumer *Relay) {
	t.Helper()
	ctx := context.Background()
	const perProducer = 25

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		received []model.RawMessage
	)
	done := make(chan struct{})

	drainer := make(chan struct{})
	go func() {
		defer close(drainer)
		for {
			select {
			case <-done:
				return
			default:
			}
			batch := consumer.DrainAll(ctx)
			mu.Lock()
			received = append(received, batch...)
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()

	for p, producer := range producers {
		wg.Add(1)
		go func(p int, producer *Relay) {
			defer wg.Done()
			for i := range perProducer {
				producer.Append(ctx, msg(fmt.Sprintf("P%d", p), fmt.Sprintf("p%d-m%d", p, i), int64(i+1)))
			}
		}(p, producer)
	}

	wg.Wait()
	close(done)
	<-drainer
	received = append(received, consumer.DrainAll(ctx)...)

	seen := make(map[string]int)
	for _, m := range received {
		seen[m.Body]++
	}
	assert.Len(t, seen, len(producers)*perProducer, "every append must be drained")
	for body, count := range seen {
		assert.Equal(t, 1, count, "message %s drained more than once", body)
	}
}

func TestRelay_ConcurrentAppendAndDrain_Memory(t *testing.T) {
	kv := storage.NewMemoryKV()
	logger := common.DiscardLogger()
	runConcurrentAppendDrain(t,
		[]*Relay{New(kv, "", logger), New(kv, "", logger), New(kv, "", logger)},
		New(kv, "", logger))
}

func TestRelay_ConcurrentAppendAndDrain_SQLiteAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()
	logger := common.DiscardLogger()

	open := func() *storage.SQLiteStorage {
		s, err := storage.NewSQLiteStorage(path)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	capture := open()
	app := open()
	runConcurrentAppendDrain(t,
		[]*Relay{New(capture, "", logger), New(capture, "", logger)},
		New(app, "", logger))
}

func TestRelay_ConcurrentAppendAndDrain_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	logger := common.DiscardLogger()

	open := func() *storage.RedisKV {
		kv, err := storage.NewRedisKV(ctx, storage.RedisOptions{Addr: mr.Addr(), Prefix: "captures:"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = kv.Close() })
		return kv
	}

	runConcurrentAppendDrain(t,
		[]*Relay{New(open(), "", logger), New(open(), "", logger)},
		New(open(), "", logger))
}
