// Package engine fans one conversation out to many models and merges their
// outputs, in batch or as a single interleaved stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"multichat/internal/models"
	"multichat/internal/provider"
	"multichat/internal/router"
)

// DefaultTimeout is the dispatch ceiling applied when none is configured.
const DefaultTimeout = 30 * time.Second

// Manager dispatches requests to the adapters of a registry.
type Manager struct {
	registry *provider.Registry
	router   *router.Router
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides the dispatch ceiling.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New constructs a manager over registry, consulting rt for streaming
// capability.
func New(registry *provider.Registry, rt *router.Router, opts ...Option) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	m := &Manager{
		registry: registry,
		router:   rt,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ConfiguredModels returns the sorted IDs of models backed by a credential.
func (m *Manager) ConfiguredModels() []string {
	return m.registry.Models()
}

type dispatchIDKey struct{}

// WithDispatchID attaches id to ctx so dispatch logs can be correlated with
// the caller's request.
func WithDispatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, dispatchIDKey{}, id)
}

func dispatchID(ctx context.Context) string {
	if id, ok := ctx.Value(dispatchIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func missingKey(model string) string {
	return fmt.Sprintf("No API key configured for %s", model)
}

func buildRequest(model string, conversation []models.Message, opts models.GenerationOptions, stream bool) models.Request {
	return models.Request{
		Model:           model,
		Messages:        conversation,
		Temperature:     opts.Temperature,
		MaxOutputTokens: opts.MaxOutputTokens,
		Stream:          stream,
	}
}

// DispatchBatch calls every model concurrently and returns one result per
// requested ID, in input order. Duplicate IDs are dispatched independently.
// Models without an adapter are reported without a network call.
func (m *Manager) DispatchBatch(ctx context.Context, ids []string, conversation []models.Message, opts models.GenerationOptions) []models.Result {
	logger := m.logger.With("dispatch_id", dispatchID(ctx), "mode", "batch")
	started := time.Now()
	logger.Info("dispatch started", "models", ids)

	sup := NewSupervisor(ctx, m.timeout)
	defer sup.Stop()

	results := make([]models.Result, len(ids))
	pending := make([]chan models.Result, len(ids))
	for i, id := range ids {
		adapter, err := m.registry.Lookup(id)
		if err != nil {
			results[i] = models.Result{Model: id, Error: missingKey(id)}
			continue
		}

		ch := make(chan models.Result, 1)
		pending[i] = ch
		go func() {
			ch <- m.generate(sup, logger, adapter, buildRequest(id, conversation, opts, false))
		}()
	}

	for i, ch := range pending {
		if ch == nil {
			continue
		}
		select {
		case res := <-ch:
			results[i] = res
		case <-sup.Done():
			select {
			case res := <-ch:
				results[i] = res
			default:
				results[i] = models.Result{Model: ids[i], Error: sup.Reason()}
			}
		}
	}

	if sup.Interrupted() {
		sup.Terminate()
		logger.Warn("dispatch cut short", "reason", sup.Reason())
	}
	logger.Info("dispatch finished", "duration_ms", time.Since(started).Milliseconds())
	return results
}

func (m *Manager) generate(sup *Supervisor, logger *slog.Logger, adapter provider.Adapter, req models.Request) (res models.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("adapter panicked", "model", req.Model, "panic", r)
			res = models.ResultFromError(req.Model, fmt.Errorf("internal error: %v", r))
		}
	}()

	res = adapter.Generate(sup.Context(), req)
	res.Model = req.Model
	if res.Error != "" && sup.Interrupted() {
		res.Error = sup.Reason()
	}
	return res
}

// DispatchStream returns a single-use sequence merging the streams of every
// requested model. Chunks are yielded in arrival order; each model's chunks
// stay in order and end with exactly one chunk where Done is true. Duplicate
// IDs are collapsed. Breaking out of the range cancels every in-flight call.
func (m *Manager) DispatchStream(ctx context.Context, ids []string, conversation []models.Message, opts models.GenerationOptions) iter.Seq[models.StreamChunk] {
	var consumed atomic.Bool
	ids = dedupe(ids)

	return func(yield func(models.StreamChunk) bool) {
		if !consumed.CompareAndSwap(false, true) {
			m.logger.Warn("dispatch stream already consumed")
			return
		}

		logger := m.logger.With("dispatch_id", dispatchID(ctx), "mode", "stream")
		started := time.Now()
		logger.Info("dispatch started", "models", ids)
		defer func() {
			logger.Info("dispatch finished", "duration_ms", time.Since(started).Milliseconds())
		}()

		sup := NewSupervisor(ctx, m.timeout)
		defer sup.Stop()

		type job struct {
			id        string
			adapter   provider.Adapter
			streaming bool
		}
		var jobs []job
		for _, id := range ids {
			adapter, err := m.registry.Lookup(id)
			if err != nil {
				if !yield(models.StreamChunk{Model: id, Done: true, Error: missingKey(id)}) {
					return
				}
				continue
			}
			jobs = append(jobs, job{id: id, adapter: adapter})
		}
		if len(jobs) == 0 {
			return
		}

		resolved := make([]string, len(jobs))
		for i, j := range jobs {
			resolved[i] = j.id
		}
		streamIDs, batchIDs := m.router.Partition(resolved)
		logger.Debug("models partitioned", "streaming", streamIDs, "batch_only", batchIDs)
		for i := range jobs {
			jobs[i].streaming = slices.Contains(streamIDs, jobs[i].id)
		}

		events := make(chan models.StreamChunk)
		active := make(map[string]bool, len(jobs))
		for _, j := range jobs {
			active[j.id] = true
			go m.stream(sup, logger, j.adapter, buildRequest(j.id, conversation, opts, true), j.streaming, events)
		}

		// terminate ends every model still active with the supervisor's
		// reason, in request order.
		terminate := func() {
			sup.Terminate()
			reason := sup.Reason()
			logger.Warn("dispatch cut short", "reason", reason, "active", len(active))
			for _, j := range jobs {
				if !active[j.id] {
					continue
				}
				delete(active, j.id)
				if !yield(models.StreamChunk{Model: j.id, Done: true, Error: reason}) {
					return
				}
			}
		}

		for len(active) > 0 {
			select {
			case chunk := <-events:
				if sup.Interrupted() {
					terminate()
					return
				}
				if !active[chunk.Model] {
					continue
				}
				if chunk.Error != "" {
					chunk.Done = true
				}
				if chunk.Done {
					delete(active, chunk.Model)
				}
				if !yield(chunk) {
					return
				}
			case <-sup.Done():
				terminate()
				return
			}
		}
	}
}

// stream drives one model and forwards its chunks to out. Batch-only models
// are wrapped as a single terminal chunk. Every send gives up once the
// dispatch ends so the goroutine never outlives it.
func (m *Manager) stream(sup *Supervisor, logger *slog.Logger, adapter provider.Adapter, req models.Request, streaming bool, out chan<- models.StreamChunk) {
	ctx := sup.Context()
	send := func(chunk models.StreamChunk) bool {
		chunk.Model = req.Model
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("adapter panicked", "model", req.Model, "panic", r)
			send(models.ChunkFromError(req.Model, fmt.Errorf("internal error: %v", r)))
		}
	}()

	streamer, ok := adapter.(provider.Streamer)
	if !ok || !streaming {
		send(models.ChunkFromResult(adapter.Generate(ctx, req)))
		return
	}

	for chunk := range streamer.GenerateStream(ctx, req) {
		if chunk.Error != "" {
			chunk.Done = true
		}
		if !send(chunk) || chunk.Done {
			return
		}
	}
	logger.Warn("stream ended without a terminal chunk", "model", req.Model)
	send(models.StreamChunk{Done: true})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
