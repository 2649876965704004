// Package events turns model text fragments into server-sent event lines.
//
// A newline inside a fragment cannot be sent as an empty data line because
// an empty line ends an event on the wire. Each break is therefore encoded
// as content line, marker line (a single space), content line.
package events

import (
	"context"
	"strings"
)

// FieldData is the SSE field every line is written to.
const FieldData = "data"

// Marker stands in for a newline in the model output.
const Marker = " "

// EventLine is one unit of the event stream.
type EventLine struct {
	Field string
	Text  string
}

func data(text string) EventLine {
	return EventLine{Field: FieldData, Text: text}
}

// Rechunk splits a single fragment into event lines. An empty fragment
// yields nothing.
func Rechunk(fragment string) []EventLine {
	if fragment == "" {
		return nil
	}

	segments := strings.Split(fragment, "\n")
	lines := make([]EventLine, 0, 2*len(segments)-1)
	for _, segment := range segments[:len(segments)-1] {
		lines = append(lines, data(segment), data(Marker))
	}
	return append(lines, data(segments[len(segments)-1]))
}

// Pipe re-chunks fragments as they arrive and hands each line to emit in
// order. It returns when fragments is closed, emit fails, or ctx is done.
func Pipe(ctx context.Context, fragments <-chan string, emit func(EventLine) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fragment, ok := <-fragments:
			if !ok {
				return nil
			}
			for _, line := range Rechunk(fragment) {
				if err := emit(line); err != nil {
					return err
				}
			}
		}
	}
}
