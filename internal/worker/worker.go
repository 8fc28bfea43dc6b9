package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inletmail/inlet/internal/mail"
	"github.com/inletmail/inlet/internal/queue"
)

// Processor handles one raw message end to end.
type Processor interface {
	Process(ctx context.Context, raw []byte) (*mail.Message, error)
}

// Options controls polling behavior.
type Options struct {
	// SleepInterval is how long the worker waits after an empty poll.
	SleepInterval time.Duration

	// ArchiveProcessed keeps processed messages in the spool archive
	// instead of deleting them.
	ArchiveProcessed bool
}

// Worker drains the spool by polling. Messages are claimed one at a time
// and processed sequentially; a failure on one message never stops the
// loop.
type Worker struct {
	spool     *queue.Spool
	processor Processor
	opts      Options
	logger    *slog.Logger
}

func New(spool *queue.Spool, processor Processor, opts Options, logger *slog.Logger) *Worker {
	if opts.SleepInterval <= 0 {
		opts.SleepInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{spool: spool, processor: processor, opts: opts, logger: logger}
}

// Run polls the spool until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "spool", w.spool.Dir(), "interval", w.opts.SleepInterval)
	for {
		processed, err := w.runOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("spool poll failed", "error", err)
		}
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return ctx.Err()
		}
		if processed == 0 {
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopped")
				return ctx.Err()
			case <-time.After(w.opts.SleepInterval):
			}
		}
	}
}

// runOnce handles every message visible in a single listing and returns
// how many were processed.
func (w *Worker) runOnce(ctx context.Context) (int, error) {
	ids, err := w.spool.List()
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := w.handle(ctx, id); err != nil {
			w.logger.Error("failed to process spooled message", "id", id, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (w *Worker) handle(ctx context.Context, id string) error {
	if err := w.spool.Claim(id); err != nil {
		// Another worker got there first.
		if errors.Is(err, queue.ErrAlreadyClaimed) {
			return nil
		}
		return err
	}

	raw, err := w.spool.Read(id)
	if err != nil {
		return err
	}

	if _, err := w.processor.Process(ctx, raw); err != nil {
		// Unparseable input would fail forever; park it in the archive
		// for inspection instead of retrying.
		if archiveErr := w.spool.Archive(id); archiveErr != nil {
			return fmt.Errorf("%w (archive failed: %v)", err, archiveErr)
		}
		return err
	}

	if w.opts.ArchiveProcessed {
		return w.spool.Archive(id)
	}
	return w.spool.Remove(id)
}
