package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// sseWriter frames Server-Sent Events and flushes after each one.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	s.flusher.Flush()
	return nil
}

// end writes the terminal event telling clients no more chunks follow.
func (s *sseWriter) end() error {
	if _, err := io.WriteString(s.w, "event: end\ndata: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write end event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
