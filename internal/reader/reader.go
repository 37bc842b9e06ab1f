// Package reader produces the raw line sequence consumed by the parse stage.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Source opens the raw byte stream behind an input location. Implementations
// live in internal/datasource; the reader only sees "a sequence of text
// lines".
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Line is one raw input line plus its 1-based position in the source.
type Line struct {
	Text   string
	Number int
}

// maxLineBytes bounds a single input line; lines beyond this are a stream
// error, not silently truncated.
const maxLineBytes = 1 << 20

// StreamLines opens src, unconditionally discards the first skip lines, and
// emits every remaining line on out in source order. The sequence is lazy and
// finite; a new run re-opens the source from the beginning.
//
// Failure modes:
//   - src.Open errors are returned before any line is emitted (fatal to the
//     run, per-run not per-line).
//   - a mid-stream read error is returned after the lines read so far.
//   - context cancellation stops the stream and returns ctx.Err().
//
// StreamLines does not close out; the caller owns channel lifecycle.
func StreamLines(ctx context.Context, src Source, skip int, out chan<- Line) error {
	rc, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("source open: %w", err)
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	n := 0
	for sc.Scan() {
		n++
		if n <= skip {
			continue
		}
		select {
		case out <- Line{Text: sc.Text(), Number: n}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", n+1, err)
	}
	return nil
}
