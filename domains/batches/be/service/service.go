package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tenants "github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
)

// Provisioner is the single-tenant path the orchestrator fans out over.
type Provisioner interface {
	Provision(ctx context.Context, req tenants.CreateRequest) (tenants.Tenant, error)
}

// SubmissionError rejects a malformed batch synchronously at submission
// time; nothing was dispatched.
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("invalid batch submission: %s", e.Reason)
}

// Config bounds batch submissions.
type Config struct {
	// MaxBatchSize caps items per batch. Zero means 50.
	MaxBatchSize int
	// MaxConcurrency caps the per-batch worker pool. Zero means 20.
	MaxConcurrency int
}

const (
	defaultMaxBatchSize   = 50
	defaultMaxConcurrency = 20
)

// Orchestrator fans provisioning requests out over a bounded worker pool and
// tracks per-batch state in its Store. Failures in one item never cancel or
// block sibling items; the final report preserves submission order.
type Orchestrator struct {
	provisioner Provisioner
	store       Store
	logger      *zap.Logger
	cfg         Config

	wg sync.WaitGroup
}

// New constructs an Orchestrator.
func New(provisioner Provisioner, store Store, logger *zap.Logger, cfg Config) *Orchestrator {
	if provisioner == nil {
		panic("batch orchestrator requires provisioner")
	}
	if store == nil {
		panic("batch orchestrator requires store")
	}
	if logger == nil {
		panic("batch orchestrator requires logger")
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Orchestrator{provisioner: provisioner, store: store, logger: logger, cfg: cfg}
}

// Submit validates the batch, records it as PENDING, starts the dispatcher
// and returns the batch id immediately. Callers poll Status until a terminal
// state.
func (o *Orchestrator) Submit(ctx context.Context, reqs []tenants.CreateRequest, concurrency int, continueOnError bool) (uuid.UUID, error) {
	if len(reqs) == 0 {
		return uuid.Nil, &SubmissionError{Reason: "at least one request is required"}
	}
	if len(reqs) > o.cfg.MaxBatchSize {
		return uuid.Nil, &SubmissionError{Reason: fmt.Sprintf("batch size %d exceeds the cap of %d", len(reqs), o.cfg.MaxBatchSize)}
	}
	if concurrency < 1 || concurrency > o.cfg.MaxConcurrency {
		return uuid.Nil, &SubmissionError{Reason: fmt.Sprintf("concurrency must be between 1 and %d", o.cfg.MaxConcurrency)}
	}

	job := &Job{
		ID:              uuid.New(),
		Status:          StatusPending,
		Requests:        append([]tenants.CreateRequest(nil), reqs...),
		Concurrency:     concurrency,
		ContinueOnError: continueOnError,
		Results:         make([]*ItemResult, len(reqs)),
		CreatedAt:       time.Now().UTC(),
	}
	if err := o.store.Create(job); err != nil {
		return uuid.Nil, err
	}

	// The batch outlives the submission request; only cancellation of the
	// submitting context's values is inherited, not its deadline.
	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go o.run(runCtx, job.ID, job.Requests, concurrency, continueOnError)

	o.logger.Info("batch submitted",
		zap.String("batch_id", job.ID.String()),
		zap.Int("items", len(reqs)),
		zap.Int("concurrency", concurrency),
	)
	return job.ID, nil
}

func (o *Orchestrator) run(ctx context.Context, id uuid.UUID, reqs []tenants.CreateRequest, concurrency int, continueOnError bool) {
	defer o.wg.Done()

	now := time.Now().UTC()
	_ = o.store.Update(id, func(job *Job) {
		job.Status = StatusInProgress
		job.StartedAt = &now
	})

	indexes := make(chan int)
	var failed atomic.Bool
	var workers sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for i := range indexes {
				res := o.provisionItem(ctx, id, i, reqs[i])
				if !res.Success {
					failed.Store(true)
				}
				_ = o.store.Update(id, func(job *Job) {
					job.Results[i] = res
				})
			}
		}()
	}

	for i := range reqs {
		if !continueOnError && failed.Load() {
			break
		}
		indexes <- i
	}
	close(indexes)
	workers.Wait()

	completed := time.Now().UTC()
	_ = o.store.Update(id, func(job *Job) {
		for i, res := range job.Results {
			if res == nil {
				job.Results[i] = &ItemResult{
					Index:     i,
					Name:      job.Requests[i].Name,
					Domain:    job.Requests[i].Domain,
					Success:   false,
					Error:     "not dispatched: batch halted after an earlier failure",
					ErrorKind: "Skipped",
				}
			}
		}
		job.Status = deriveStatus(job.Results)
		job.CompletedAt = &completed
	})

	snap, err := o.store.Get(id)
	if err == nil {
		o.logger.Info("batch completed",
			zap.String("batch_id", id.String()),
			zap.String("status", string(snap.Status)),
			zap.Int("succeeded", snap.Succeeded),
			zap.Int("failed", snap.Failed),
			zap.Duration("elapsed", snap.Elapsed),
		)
	}
}

func (o *Orchestrator) provisionItem(ctx context.Context, batchID uuid.UUID, index int, req tenants.CreateRequest) *ItemResult {
	start := time.Now()
	tenant, err := o.provisioner.Provision(ctx, req)
	res := &ItemResult{
		Index:   index,
		Name:    req.Name,
		Domain:  req.Domain,
		Elapsed: time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = classifyError(err)
		o.logger.Warn("batch item failed",
			zap.String("batch_id", batchID.String()),
			zap.Int("index", index),
			zap.String("domain", req.Domain),
			zap.String("kind", res.ErrorKind),
			zap.Error(err),
		)
		return res
	}
	res.Success = true
	res.Tenant = &tenant
	return res
}

// Status returns the current snapshot of a batch, including per-item
// outcomes and elapsed processing time.
func (o *Orchestrator) Status(id uuid.UUID) (Snapshot, error) {
	return o.store.Get(id)
}

// ListActive returns all non-terminal batch snapshots.
func (o *Orchestrator) ListActive() []Snapshot {
	return o.store.ListActive()
}

// Cleanup removes terminal batches whose completion is older than the given
// age and returns how many were removed.
func (o *Orchestrator) Cleanup(olderThan time.Duration) int {
	return o.store.DeleteOlderThan(time.Now().UTC().Add(-olderThan))
}

// Wait blocks until every dispatched batch has drained; used by shutdown and
// tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func classifyError(err error) string {
	var (
		validation *tenants.ValidationError
		duplicate  *tenants.DuplicateKeyError
		creation   *tenants.SchemaCreationError
		migration  *tenants.MigrationError
		structural *tenants.StructuralValidationError
		timeout    *tenants.TimeoutError
		rollback   *tenants.RollbackError
	)
	switch {
	case errors.As(err, &rollback):
		return "RollbackError"
	case errors.As(err, &validation):
		return "ValidationError"
	case errors.As(err, &duplicate):
		return "DuplicateKeyError"
	case errors.As(err, &timeout):
		return "TimeoutError"
	case errors.As(err, &migration):
		return "MigrationError"
	case errors.As(err, &structural):
		return "StructuralValidationError"
	case errors.As(err, &creation):
		return "SchemaCreationError"
	default:
		return "InternalError"
	}
}
