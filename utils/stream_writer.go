package utils

import (
	"errors"
	"io"
	"net/http"

	"visit-summary-service/events"
)

var errNoFlusher = errors.New("response writer does not support flushing")

// SetStreamHeaders marks the response as an unbuffered event stream.
func SetStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteEvent writes one line as "<field>: <text>\n\n" and flushes it.
func WriteEvent(w io.Writer, line events.EventLine) error {
	field := line.Field
	if field == "" {
		field = events.FieldData
	}

	if _, err := io.WriteString(w, field+": "+line.Text+"\n\n"); err != nil {
		return err
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return errNoFlusher
	}
	flusher.Flush()

	return nil
}
