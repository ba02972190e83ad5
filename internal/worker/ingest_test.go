package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/actionflow/internal/kafka"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/service/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (f *fakeFetcher) Fetch(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) Commit(_ context.Context, m kafka.Message) error {
	f.mu.Lock()
	f.committed = append(f.committed, m.Offset)
	f.mu.Unlock()
	return nil
}

func (f *fakeFetcher) offsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	fails   int // transient failures before success
	got     []ingest.Envelope
	invalid bool
}

func (r *fakeRecorder) Record(_ context.Context, env ingest.Envelope) (ingest.Recorded, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalid {
		return ingest.Recorded{}, repository.ErrInvalidEvent
	}
	if r.fails > 0 {
		r.fails--
		return ingest.Recorded{}, errors.New("db down")
	}
	r.got = append(r.got, env)
	return ingest.Recorded{Event: env.Event}, nil
}

func runIngest(t *testing.T, src *fakeFetcher, rec *fakeRecorder, wantCommits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := NewIngestor(src, rec, nil)
	in.retry = time.Millisecond
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	require.Eventually(t, func() bool { return len(src.offsets()) == wantCommits }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestIngestor_RecordsAndCommits(t *testing.T) {
	src := &fakeFetcher{msgs: []kafka.Message{
		{Offset: 1, Key: []byte("c1"), Value: []byte(`{"event":{"event_type":"escalation_sent"},"actions":[{"action_type":"email_send"}]}`)},
		{Offset: 2, Value: []byte(`not json`)},
	}}
	rec := &fakeRecorder{fails: 2}

	runIngest(t, src, rec, 2)

	assert.Equal(t, []int64{1, 2}, src.offsets())
	require.Len(t, rec.got, 1)
	assert.Equal(t, "c1", rec.got[0].Event.ConversationID)
	require.Len(t, rec.got[0].Actions, 1)
	assert.Equal(t, "email_send", rec.got[0].Actions[0].Type.String())
}

func TestIngestor_RejectedEnvelopeIsSkipped(t *testing.T) {
	src := &fakeFetcher{msgs: []kafka.Message{{Offset: 7, Value: []byte(`{"event":{}}`)}}}
	rec := &fakeRecorder{invalid: true}

	runIngest(t, src, rec, 1)
	assert.Equal(t, []int64{7}, src.offsets())
	assert.Empty(t, rec.got)
}
