// Package router partitions requested models by streaming capability.
package router

import "multichat/internal/models"

// Router is a static capability table built from the model catalog.
type Router struct {
	streaming map[string]bool
}

// New constructs a router from catalog. Models absent from the catalog are
// treated as batch-only.
func New(catalog []models.ModelSpec) *Router {
	streaming := make(map[string]bool, len(catalog))
	for _, spec := range catalog {
		streaming[spec.ID] = spec.Streaming
	}
	return &Router{streaming: streaming}
}

// IsStreaming reports whether the catalog marks modelID as streaming-capable.
func (r *Router) IsStreaming(modelID string) bool {
	return r.streaming[modelID]
}

// Partition splits ids into streaming and batch-only groups, preserving
// input order within each group.
func (r *Router) Partition(ids []string) (streaming, batchOnly []string) {
	for _, id := range ids {
		if r.IsStreaming(id) {
			streaming = append(streaming, id)
		} else {
			batchOnly = append(batchOnly, id)
		}
	}
	return streaming, batchOnly
}
