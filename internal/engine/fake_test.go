package engine

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strings"
	"testing"
	"time"

	"multichat/internal/models"
	"multichat/internal/provider"
	"multichat/internal/router"
)

// batchAdapter answers Generate only, like a provider without streaming.
type batchAdapter struct {
	model   string
	content string
	err     string
	delay   time.Duration
	block   bool
	panics  string
	stopped chan struct{}
}

func (a *batchAdapter) Model() string { return a.model }

func (a *batchAdapter) Generate(ctx context.Context, req models.Request) models.Result {
	if a.panics != "" {
		panic(a.panics)
	}
	if err := a.wait(ctx); err != nil {
		return models.ResultFromError(a.model, err)
	}
	if a.err != "" {
		return models.Result{Model: a.model, Error: a.err}
	}
	return models.Result{Model: a.model, Content: a.content, FinishReason: "stop"}
}

func (a *batchAdapter) wait(ctx context.Context) error {
	if a.block {
		<-ctx.Done()
		if a.stopped != nil {
			close(a.stopped)
		}
		return ctx.Err()
	}
	if a.delay == 0 {
		return nil
	}
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamAdapter emits each delta of chunks and then a terminal chunk.
// With block set it stalls after the last delta until the context ends.
type streamAdapter struct {
	batchAdapter
	chunks []string
}

func newStreamAdapter(model string, chunks ...string) *streamAdapter {
	return &streamAdapter{
		batchAdapter: batchAdapter{model: model, content: strings.Join(chunks, "")},
		chunks:       chunks,
	}
}

func (a *streamAdapter) GenerateStream(ctx context.Context, req models.Request) iter.Seq[models.StreamChunk] {
	return func(yield func(models.StreamChunk) bool) {
		if a.panics != "" {
			panic(a.panics)
		}
		for _, c := range a.chunks {
			if !yield(models.StreamChunk{Model: a.model, Content: c}) {
				return
			}
		}
		if err := a.wait(ctx); err != nil {
			yield(models.ChunkFromError(a.model, err))
			return
		}
		if a.err != "" {
			yield(models.StreamChunk{Model: a.model, Done: true, Error: a.err})
			return
		}
		yield(models.StreamChunk{Model: a.model, Done: true, FinishReason: "stop"})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager registers adapters and builds a router where every adapter
// implementing provider.Streamer is marked streaming.
func newTestManager(t *testing.T, timeout time.Duration, adapters ...provider.Adapter) *Manager {
	t.Helper()

	reg := provider.NewRegistry()
	catalog := make([]models.ModelSpec, 0, len(adapters))
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			t.Fatalf("Register(%s): %v", a.Model(), err)
		}
		_, streaming := a.(provider.Streamer)
		catalog = append(catalog, models.ModelSpec{ID: a.Model(), Streaming: streaming})
	}

	m, err := New(reg, router.New(catalog), WithTimeout(timeout), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func userTurn(text string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: text}}
}

func collect(t *testing.T, seq iter.Seq[models.StreamChunk]) []models.StreamChunk {
	t.Helper()

	done := make(chan []models.StreamChunk, 1)
	go func() {
		var out []models.StreamChunk
		for c := range seq {
			out = append(out, c)
		}
		done <- out
	}()

	select {
	case out := <-done:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
		return nil
	}
}

// terminals indexes the Done chunk of each model, failing on duplicates.
func terminals(t *testing.T, chunks []models.StreamChunk) map[string]models.StreamChunk {
	t.Helper()

	out := make(map[string]models.StreamChunk)
	for _, c := range chunks {
		if c.Error != "" && !c.Done {
			t.Errorf("error chunk for %s not marked done: %+v", c.Model, c)
		}
		if !c.Done {
			if _, ended := out[c.Model]; ended {
				t.Errorf("chunk for %s after its terminal chunk: %+v", c.Model, c)
			}
			continue
		}
		if _, dup := out[c.Model]; dup {
			t.Errorf("more than one terminal chunk for %s", c.Model)
		}
		out[c.Model] = c
	}
	return out
}

func contentByModel(chunks []models.StreamChunk) map[string]string {
	out := make(map[string]string)
	for _, c := range chunks {
		out[c.Model] += c.Content
	}
	return out
}

func slogTo(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}
