package services

import (
	"context"
	"errors"
	"sync"

	"inspection-reviews/metrics"
	"inspection-reviews/models"
	"inspection-reviews/storage"
	"inspection-reviews/utils"
)

// Resolver finds a place identifier for an establishment. An empty id with a
// nil error means no candidate was found.
type Resolver interface {
	Resolve(ctx context.Context, apiKey, name, lat, lng string) (string, error)
}

// Fetcher retrieves place details for a resolved identifier.
type Fetcher interface {
	Details(ctx context.Context, apiKey, placeID string) (*models.Enrichment, error)
}

// EnricherOptions tunes the worker pool and checkpoint cadence.
type EnricherOptions struct {
	MaxConcurrency  int
	RateLimitMs     int
	CheckpointEvery int
}

// RunSummary counts record outcomes for one enrichment run.
type RunSummary struct {
	Total      int
	Enriched   int
	Unresolved int
	Failed     int
	Resumed    int
	Pending    int
}

func (s *RunSummary) count(status models.EnrichStatus) {
	switch status {
	case models.StatusEnriched:
		s.Enriched++
	case models.StatusUnresolved:
		s.Unresolved++
	case models.StatusFailed:
		s.Failed++
	}
}

// Enricher drives place lookups for every record in a dataset.
type Enricher struct {
	resolver   Resolver
	fetcher    Fetcher
	checkpoint storage.Checkpointer
	opts       EnricherOptions
	logger     *utils.Logger
	metrics    *metrics.Pipeline
}

// NewEnricher creates an Enricher. checkpoint and m may be nil.
func NewEnricher(resolver Resolver, fetcher Fetcher, checkpoint storage.Checkpointer, opts EnricherOptions, logger *utils.Logger, m *metrics.Pipeline) *Enricher {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 100
	}
	return &Enricher{
		resolver:   resolver,
		fetcher:    fetcher,
		checkpoint: checkpoint,
		opts:       opts,
		logger:     logger,
		metrics:    m,
	}
}

type lookupResult struct {
	key        string
	status     models.EnrichStatus
	detail     string
	enrichment *models.Enrichment
}

// Run resolves and fetches every unsettled record in data, merging results
// in place. Lookups run on a bounded worker pool; a single aggregator
// goroutine applies results and flushes the checkpoint. On cancellation Run
// drains in-flight work, flushes, and returns ctx.Err() with data holding
// everything completed so far.
func (e *Enricher) Run(ctx context.Context, data models.Dataset, apiKey string) (RunSummary, error) {
	summary := RunSummary{Total: len(data)}

	done := utils.NewKeySet()
	if err := e.resume(ctx, data, done, &summary); err != nil {
		e.logger.Warn("[enricher] Ignoring checkpoint: %v", err)
	}

	results := make(chan lookupResult, e.opts.MaxConcurrency)
	var aggWG sync.WaitGroup
	aggWG.Add(1)
	go func() {
		defer aggWG.Done()
		e.aggregate(ctx, data, results, &summary)
	}()

	pool := utils.NewWorkerPool(e.opts.MaxConcurrency, e.opts.RateLimitMs)
	for _, key := range data.Keys() {
		if done.Contains(key) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		rec := data[key]
		k, name, lat, lng := key, rec.Name, rec.Latitude, rec.Longitude
		submitted := pool.Submit(ctx, func() {
			if res, ok := e.lookup(ctx, apiKey, k, name, lat, lng); ok {
				results <- res
			}
		})
		if !submitted {
			break
		}
	}
	pool.Wait()
	close(results)
	aggWG.Wait()

	summary.Pending = summary.Total - summary.Enriched - summary.Unresolved - summary.Failed
	e.logger.Info("[enricher] Done: %d enriched, %d unresolved, %d failed, %d resumed, %d pending",
		summary.Enriched, summary.Unresolved, summary.Failed, summary.Resumed, summary.Pending)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// resume applies settled checkpoint entries to data and marks them done.
func (e *Enricher) resume(ctx context.Context, data models.Dataset, done *utils.KeySet, summary *RunSummary) error {
	if e.checkpoint == nil {
		return nil
	}
	entries, err := e.checkpoint.Load(ctx)
	if err != nil {
		return err
	}
	for key, entry := range entries {
		rec, ok := data[key]
		if !ok {
			continue
		}
		apply(rec, entry.Status, entry.Detail, entry.Enrichment)
		if !rec.Settled() {
			continue
		}
		done.Add(key)
		summary.Resumed++
		summary.count(entry.Status)
	}
	if summary.Resumed > 0 {
		e.logger.Info("[enricher] Resumed %d records from checkpoint", summary.Resumed)
	}
	return nil
}

// lookup runs resolve then fetch for one record. ok is false when the work
// was abandoned because ctx was cancelled.
func (e *Enricher) lookup(ctx context.Context, apiKey, key, name, lat, lng string) (lookupResult, bool) {
	if ctx.Err() != nil {
		return lookupResult{}, false
	}
	e.metrics.InFlight(1)
	defer e.metrics.InFlight(-1)

	res := lookupResult{key: key}

	placeID, err := e.resolver.Resolve(ctx, apiKey, name, lat, lng)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return res, false
		}
		// Timeouts and transport failures leave the record unresolved.
		res.status = models.StatusUnresolved
		res.detail = err.Error()
		e.logger.Debug("[enricher] %s: resolve failed: %v", key, err)
		return res, true
	}
	if placeID == "" {
		res.status = models.StatusUnresolved
		e.logger.Debug("[enricher] %s: no place found", key)
		return res, true
	}

	enrichment, err := e.fetcher.Details(ctx, apiKey, placeID)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return res, false
		}
		res.status = models.StatusFailed
		res.detail = err.Error()
		e.logger.Debug("[enricher] %s: details for %s failed: %v", key, placeID, err)
		return res, true
	}

	res.status = models.StatusEnriched
	res.enrichment = enrichment
	e.logger.Debug("[enricher] Building data for %s ID: %s", key, placeID)
	return res, true
}

// aggregate is the only writer to data while Run is active.
func (e *Enricher) aggregate(ctx context.Context, data models.Dataset, results <-chan lookupResult, summary *RunSummary) {
	flushCtx := context.WithoutCancel(ctx)
	pending := make([]storage.CheckpointEntry, 0, e.opts.CheckpointEvery)
	processed := 0

	flush := func() {
		if e.checkpoint == nil || len(pending) == 0 {
			pending = pending[:0]
			return
		}
		if err := e.checkpoint.Save(flushCtx, pending); err != nil {
			e.logger.Error("[checkpoint] Save of %d entries failed: %v", len(pending), err)
		} else {
			e.metrics.CheckpointFlushed()
		}
		pending = pending[:0]
	}

	for res := range results {
		rec := data[res.key]
		apply(rec, res.status, res.detail, res.enrichment)
		summary.count(res.status)
		e.metrics.RecordStatus(string(res.status))

		pending = append(pending, storage.CheckpointEntry{
			Key:        res.key,
			Status:     res.status,
			Detail:     res.detail,
			Enrichment: res.enrichment,
		})
		processed++
		if len(pending) >= e.opts.CheckpointEvery {
			flush()
			e.logger.Info("[enricher] Progress: %d/%d records processed",
				processed+summary.Resumed, summary.Total)
		}
	}
	flush()
}

// apply attaches a lookup outcome to rec. Inspection fields are never touched.
func apply(rec *models.Record, status models.EnrichStatus, detail string, enrichment *models.Enrichment) {
	rec.Status = status
	rec.StatusDetail = detail
	if enrichment != nil {
		rec.Enrichment = enrichment
	}
}
