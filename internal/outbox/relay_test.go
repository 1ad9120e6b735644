package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore mimics Repository.ProcessPending over a slice.
type memoryStore struct {
	mu      sync.Mutex
	records []Record
	sent    map[int64]bool
	err     error
}

func newMemoryStore(records ...Record) *memoryStore {
	return &memoryStore{records: records, sent: map[int64]bool{}}
}

func (s *memoryStore) ProcessPending(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return 0, s.err
	}

	n := 0
	for _, rec := range s.records {
		if n == limit {
			break
		}
		if s.sent[rec.ID] {
			continue
		}
		if err := fn(ctx, rec); err != nil {
			break
		}
		s.sent[rec.ID] = true
		n++
	}
	return n, nil
}

func (s *memoryStore) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records) - len(s.sent)
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []string
	failOn   string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key == p.failOn {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, topic+"/"+key)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func records(keys ...string) []Record {
	out := make([]Record, 0, len(keys))
	for i, k := range keys {
		out = append(out, Record{ID: int64(i + 1), EventID: k, Topic: "order.created", Key: k, Payload: []byte(`{}`)})
	}
	return out
}

func TestRelay_RunOnce(t *testing.T) {
	store := newMemoryStore(records("a", "b", "c")...)
	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, time.Second, 10, discardLogger())

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"order.created/a", "order.created/b", "order.created/c"}, pub.published())
	assert.Zero(t, store.pending())
}

func TestRelay_StopsAtFirstFailure(t *testing.T) {
	store := newMemoryStore(records("a", "b", "c")...)
	pub := &recordingPublisher{failOn: "b"}
	relay := NewRelay(store, pub, time.Second, 10, discardLogger())

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"order.created/a"}, pub.published())
	assert.Equal(t, 2, store.pending())

	pub.failOn = ""
	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"order.created/a", "order.created/b", "order.created/c"}, pub.published())
}

func TestRelay_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	relay := NewRelay(store, &recordingPublisher{}, time.Second, 10, discardLogger())

	_, err := relay.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRelay_RunDrainsBacklogUntilCancelled(t *testing.T) {
	store := newMemoryStore(records("a", "b", "c", "d", "e")...)
	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, 10*time.Millisecond, 2, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.pending() == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
	assert.Len(t, pub.published(), 5)
}
