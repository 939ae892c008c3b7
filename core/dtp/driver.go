package dtp

import (
	"context"
	"errors"
	"sync"
	"time"

	"dtp-ingest/config"
	"dtp-ingest/core/store"
	"dtp-ingest/core/utils"

	"github.com/gofrs/uuid/v5"
)

// ErrRunInProgress is returned when a run is requested while another run
// holds the single-writer slot.
var ErrRunInProgress = errors.New("ingestion run already in progress")

type RunSummary struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Documents        int       `json:"documents"`
	Processed        int       `json:"processed"`
	Errored          int       `json:"errored"`
	Incidents        int       `json:"incidents"`
	SkippedIncidents int       `json:"skipped_incidents"`
}

// Driver pulls pending batches from the buffer and applies them one
// document at a time. Each document's entity writes and its processed mark
// commit in one transaction, so a crash between documents loses at most the
// in-flight document.
type Driver struct {
	db         *store.DB
	buffer     store.BufferStore
	writer     store.EntityWriter
	normalizer *Normalizer
	cfg        config.IngestConfig
	logger     *utils.Logger

	mu      sync.Mutex
	running bool
	last    *RunSummary
}

func NewDriver(db *store.DB, buffer store.BufferStore, writer store.EntityWriter, cfg config.IngestConfig, logger *utils.Logger) *Driver {
	return &Driver{
		db:         db,
		buffer:     buffer,
		writer:     writer,
		normalizer: NewNormalizer(cfg.DefaultCity, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Driver) LastSummary() *RunSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	cp := *d.last
	return &cp
}

// Run drains the pending backlog in batches until none remain or the
// context is cancelled. Cancellation is honored between documents only,
// never mid-transaction.
func (d *Driver) Run(ctx context.Context) (*RunSummary, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil, ErrRunInProgress
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	runID := uuid.Must(uuid.NewV4()).String()
	summary := &RunSummary{RunID: runID, StartedAt: time.Now().UTC()}
	d.logger.Printf("run %s: ingestion started", runID)

	batchSize := d.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	for {
		if err := ctx.Err(); err != nil {
			d.finish(summary)
			return summary, err
		}
		batch, err := d.buffer.SelectPending(ctx, batchSize)
		if err != nil {
			d.finish(summary)
			return summary, err
		}
		if len(batch) == 0 {
			break
		}
		d.logger.Printf("run %s: picked up %d pending documents", runID, len(batch))
		for i := range batch {
			if err := ctx.Err(); err != nil {
				d.finish(summary)
				return summary, err
			}
			d.processDocument(ctx, &batch[i], summary)
		}
	}

	d.finish(summary)
	d.logger.Printf("run %s: done, processed=%d errored=%d incidents=%d skipped=%d",
		runID, summary.Processed, summary.Errored, summary.Incidents, summary.SkippedIncidents)
	return summary, nil
}

func (d *Driver) finish(summary *RunSummary) {
	summary.FinishedAt = time.Now().UTC()
	runDurationSeconds.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	d.mu.Lock()
	d.last = summary
	d.mu.Unlock()
}

func (d *Driver) processDocument(ctx context.Context, doc *store.RawDocument, summary *RunSummary) {
	summary.Documents++

	expansions, skipped, err := d.normalizer.Normalize(doc)
	summary.SkippedIncidents += skipped
	incidentsSkippedTotal.Add(float64(skipped))
	if err != nil {
		d.fail(ctx, doc, summary, err)
		return
	}

	err = d.applyDocument(ctx, doc, expansions)
	if err != nil && d.cfg.RetryOnBusy {
		// One retry on a fresh transaction covers transient storage
		// failures; a repeat failure is treated as document-level.
		d.logger.Warnf("buffer row %d: write failed, retrying once: %v", doc.ID, err)
		err = d.applyDocument(ctx, doc, expansions)
	}
	if err != nil {
		d.fail(ctx, doc, summary, err)
		return
	}

	summary.Processed++
	summary.Incidents += len(expansions)
	documentsTotal.WithLabelValues(store.StatusProcessed).Inc()
	incidentsTotal.Add(float64(len(expansions)))
}

// applyDocument writes every expansion and the processed mark in one
// transaction.
func (d *Driver) applyDocument(ctx context.Context, doc *store.RawDocument, expansions []store.Expansion) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i := range expansions {
		if err := d.writer.Write(ctx, tx, &expansions[i]); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := d.buffer.MarkProcessed(ctx, tx, doc.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (d *Driver) fail(ctx context.Context, doc *store.RawDocument, summary *RunSummary, cause error) {
	summary.Errored++
	documentsTotal.WithLabelValues(store.StatusErrored).Inc()
	d.logger.Errorf("buffer row %d: %v", doc.ID, cause)
	reason := cause.Error()
	if max := d.cfg.MaxErrorText; max > 0 && len(reason) > max {
		reason = reason[:max]
	}
	if err := d.buffer.MarkErrored(ctx, doc.ID, reason); err != nil {
		d.logger.Errorf("buffer row %d: mark errored failed: %v", doc.ID, err)
	}
}
