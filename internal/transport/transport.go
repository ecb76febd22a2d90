// Package transport delivers message fragments to wherever a story is being
// told.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Sender delivers one message to target and returns the id the destination
// assigned to it, if any.
type Sender interface {
	Send(ctx context.Context, target, content string) (string, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, target, content string) (string, error)

func (f SenderFunc) Send(ctx context.Context, target, content string) (string, error) {
	return f(ctx, target, content)
}

// Writer prints each message on its own line.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	seq int
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Send(ctx context.Context, target, content string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintln(w.out, content); err != nil {
		return "", fmt.Errorf("writing message: %w", err)
	}
	w.seq++
	return fmt.Sprintf("%s-%d", target, w.seq), nil
}

// Discard accepts every message and drops it.
var Discard Sender = SenderFunc(func(ctx context.Context, target, content string) (string, error) {
	return "", nil
})

// PermanentError marks errors that retrying cannot fix. Senders return
// errors implementing it to opt out of WithRetry.
type PermanentError interface {
	error
	Permanent() bool
}

// WithRetry retries failed sends up to attempts times in total, waiting
// delay between tries. Errors reporting Permanent() are returned at once.
func WithRetry(s Sender, attempts int, delay time.Duration) Sender {
	if attempts <= 1 {
		return s
	}
	return SenderFunc(func(ctx context.Context, target, content string) (string, error) {
		op := func() (string, error) {
			id, err := s.Send(ctx, target, content)
			if err != nil && isPermanent(err) {
				return "", backoff.Permanent(err)
			}
			return id, err
		}
		return backoff.Retry(ctx, op,
			backoff.WithMaxTries(uint(attempts)),
			backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		)
	})
}

func isPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p) && p.Permanent()
}
