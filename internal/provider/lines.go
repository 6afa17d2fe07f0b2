package provider

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"strings"
)

const readBufferSize = 4 * 1024

// LineBuffer accumulates raw reads and releases only complete lines. A line
// split across two reads is carried over until its terminating newline
// arrives.
type LineBuffer struct {
	carry []byte
}

// Feed appends p and returns every line completed by it, without the line
// terminator.
func (b *LineBuffer) Feed(p []byte) []string {
	b.carry = append(b.carry, p...)

	var lines []string
	for {
		idx := bytes.IndexByte(b.carry, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(b.carry[:idx]), "\r"))
		b.carry = b.carry[idx+1:]
	}

	if len(b.carry) == 0 {
		b.carry = nil
	}
	return lines
}

// Flush returns the trailing partial line, if any, and resets the buffer.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.carry) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(b.carry), "\r")
	b.carry = nil
	return line, true
}

// Lines reads r in raw chunks and yields complete lines in order. A read
// error other than io.EOF is yielded once and ends the sequence.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var buf LineBuffer
		chunk := make([]byte, readBufferSize)

		for {
			n, err := r.Read(chunk)
			if n > 0 {
				for _, line := range buf.Feed(chunk[:n]) {
					if !yield(line, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				if line, ok := buf.Flush(); ok {
					yield(line, nil)
				}
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}

const sseDoneSentinel = "[DONE]"

// SSEPayload extracts the data payload of a Server-Sent Events line.
// ok is false for lines without data (blank lines, comments, event names).
// done is true for the "[DONE]" sentinel.
func SSEPayload(line string) (payload string, done bool, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false, false
	}
	if !strings.HasPrefix(line, "data:") {
		return "", false, false
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == sseDoneSentinel {
		return "", true, false
	}
	if data == "" {
		return "", false, false
	}
	return data, false, true
}

// NDJSONPayload extracts a JSON object from a newline-delimited JSON line.
// A "data:" prefix and surrounding JSON array punctuation are tolerated.
func NDJSONPayload(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
	trimmed = strings.TrimLeft(trimmed, "[, \t")
	trimmed = strings.TrimRight(trimmed, "], \t")

	if trimmed == "" || trimmed == sseDoneSentinel {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	return trimmed, true
}
