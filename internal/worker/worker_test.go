package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inletmail/inlet/internal/mail"
	"github.com/inletmail/inlet/internal/queue"
)

type fakeProcessor struct {
	seen   []string
	failOn string
}

func (f *fakeProcessor) Process(ctx context.Context, raw []byte) (*mail.Message, error) {
	f.seen = append(f.seen, string(raw))
	if f.failOn != "" && string(raw) == f.failOn {
		return nil, errors.New("unparseable")
	}
	return nil, nil
}

func newTestWorker(t *testing.T, processor Processor, opts Options) (*Worker, *queue.Spool) {
	t.Helper()
	spool, err := queue.NewSpool(t.TempDir())
	require.NoError(t, err)
	return New(spool, processor, opts, nil), spool
}

func TestRunOnce_DrainsSpool(t *testing.T) {
	processor := &fakeProcessor{}
	worker, spool := newTestWorker(t, processor, Options{})

	_, err := spool.Put([]byte("first"))
	require.NoError(t, err)
	_, err = spool.Put([]byte("second"))
	require.NoError(t, err)

	processed, err := worker.runOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.ElementsMatch(t, []string{"first", "second"}, processor.seen)

	ids, err := spool.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunOnce_FailureDoesNotStopLoop(t *testing.T) {
	processor := &fakeProcessor{failOn: "bad"}
	worker, spool := newTestWorker(t, processor, Options{})

	_, err := spool.Put([]byte("bad"))
	require.NoError(t, err)
	_, err = spool.Put([]byte("good"))
	require.NoError(t, err)

	_, err = worker.runOnce(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bad", "good"}, processor.seen)
	ids, err := spool.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunOnce_ParksUnparseableInArchive(t *testing.T) {
	processor := &fakeProcessor{failOn: "bad"}
	worker, spool := newTestWorker(t, processor, Options{})

	id, err := spool.Put([]byte("bad"))
	require.NoError(t, err)

	_, err = worker.runOnce(context.Background())
	require.NoError(t, err)

	archived := filepath.Join(spool.Dir(), "archive", id+".eml")
	raw, err := os.ReadFile(archived)
	require.NoError(t, err)
	assert.Equal(t, "bad", string(raw))
}

func TestRunOnce_ArchivesProcessedWhenConfigured(t *testing.T) {
	processor := &fakeProcessor{}
	worker, spool := newTestWorker(t, processor, Options{ArchiveProcessed: true})

	id, err := spool.Put([]byte("keep"))
	require.NoError(t, err)

	_, err = worker.runOnce(context.Background())
	require.NoError(t, err)

	archived := filepath.Join(spool.Dir(), "archive", id+".eml")
	_, err = os.Stat(archived)
	assert.NoError(t, err)
}

func TestRunOnce_SkipsAlreadyClaimed(t *testing.T) {
	processor := &fakeProcessor{}
	worker, spool := newTestWorker(t, processor, Options{})

	id, err := spool.Put([]byte("taken"))
	require.NoError(t, err)

	ids, err := spool.List()
	require.NoError(t, err)
	require.Equal(t, []string{id}, ids)

	// Another worker claims between List and Claim.
	require.NoError(t, spool.Claim(id))

	require.NoError(t, worker.handle(context.Background(), id))
	assert.Empty(t, processor.seen)
}

func TestRun_StopsOnCancel(t *testing.T) {
	worker, _ := newTestWorker(t, &fakeProcessor{}, Options{SleepInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
