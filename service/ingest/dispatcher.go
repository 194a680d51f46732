package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"
)

const (
	workerPoolSize = 4

	// Ingestion of a large PDF includes embedding every chunk.
	processTimeout = 30 * time.Minute
)

// Publisher hands a document id to an external ingestion transport. The
// message queue implements this; deployments without one use the in-process
// pool directly.
type Publisher interface {
	PublishIngest(ctx context.Context, documentID int64) error
}

// Dispatcher routes ingestion work either to the message queue or to a local
// worker pool, deduplicating concurrent requests per document id.
type Dispatcher struct {
	pipeline  *Pipeline
	publisher Publisher
	pool      *ants.Pool
	group     singleflight.Group
}

func NewDispatcher(pipeline *Pipeline, publisher Publisher) (*Dispatcher, error) {
	d := &Dispatcher{pipeline: pipeline, publisher: publisher}

	if publisher == nil {
		pool, err := ants.NewPool(workerPoolSize, ants.WithNonblocking(false))
		if err != nil {
			return nil, fmt.Errorf("failed to create ingestion worker pool: %w", err)
		}
		d.pool = pool
	}
	return d, nil
}

// Dispatch schedules ingestion of a document and returns immediately. A
// document already in flight is not scheduled twice.
func (d *Dispatcher) Dispatch(ctx context.Context, documentID int64) error {
	if d.publisher != nil {
		return d.publisher.PublishIngest(ctx, documentID)
	}

	return d.pool.Submit(func() {
		d.process(documentID)
	})
}

// Handle runs ingestion for a message-queue delivery, with the same
// per-document single flight as the local path.
func (d *Dispatcher) Handle(documentID int64) {
	d.process(documentID)
}

func (d *Dispatcher) process(documentID int64) {
	key := strconv.FormatInt(documentID, 10)
	_, _, _ = d.group.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()

		if err := d.pipeline.Process(ctx, documentID); err != nil {
			slog.Error("ingestion worker failed", "document_id", documentID, "err", err)
		}
		return nil, nil
	})
}

func (d *Dispatcher) Shutdown() {
	if d.pool != nil {
		d.pool.Release()
	}
}
