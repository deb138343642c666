// Package transport issues download requests and streams their results
// back as events. Each scheme (HTTP, S3) provides its own Transport; the
// session layer consumes the event stream without knowing which one it
// talks to.
package transport

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrNotFound marks responses saying the remote resource does not exist.
	ErrNotFound = errors.New("remote resource not found")
	// ErrBadStatus marks any other response status the download cannot use.
	ErrBadStatus = errors.New("unexpected response status")
	// ErrRangeUnsupported marks servers that answer a ranged request with a
	// full body, which would corrupt a resumed file.
	ErrRangeUnsupported = errors.New("range requests not supported")
)

// Request describes a single download attempt.
type Request struct {
	Target  string
	Headers map[string]string
	Offset  int64
}

// Progress reports absolute position within the full resource, so a
// resumed request counts the bytes already on disk.
type Progress struct {
	Read  int64
	Total int64
}

// Finished is the last event of every attempt. At most one of Err and
// Redirect is set; both empty means the body streamed to completion.
type Finished struct {
	Err      error
	Redirect string
}

// Event is emitted on a handle's channel. Exactly one field is set.
type Event struct {
	Data     []byte
	Progress *Progress
	Finished *Finished
}

// Handle tracks one issued request. Events always ends with a Finished
// event before the channel closes; after Cancel that event carries the
// cancellation error.
type Handle interface {
	Events() <-chan Event
	Cancel()
}

// Transport issues requests. Issue never fails synchronously; any error
// is reported through the handle's event stream.
type Transport interface {
	Issue(ctx context.Context, req Request) Handle
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps an error so Retryable reports false for it. Used for
// conditions where repeating the same request cannot help.
func Fatal(err error) error {
	return &fatalError{err: err}
}

// Retryable reports whether a failed attempt may be repeated. Protocol
// errors, cancellation and fatally wrapped errors are final; everything
// else (resets, timeouts, DNS hiccups, truncated bodies) may be transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var fatal *fatalError
	if errors.As(err, &fatal) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadStatus) || errors.Is(err, ErrRangeUnsupported) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

type reqHandle struct {
	events chan Event
	cancel context.CancelFunc
}

func (h *reqHandle) Events() <-chan Event { return h.events }

func (h *reqHandle) Cancel() { h.cancel() }

// stream copies the body onto the event channel in buffered chunks,
// reporting absolute progress after each one.
func stream(events chan<- Event, body io.Reader, offset, total int64, bufSize int) error {
	buf := make([]byte, bufSize)
	read := offset
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			read += int64(n)
			events <- Event{Data: chunk}
			events <- Event{Progress: &Progress{Read: read, Total: total}}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// parseContentRange extracts the complete length from a Content-Range
// header value like "bytes 100-999/1000". Returns 0 when unknown.
func parseContentRange(value string) int64 {
	idx := strings.LastIndex(value, "/")
	if idx < 0 {
		return 0
	}
	size := value[idx+1:]
	if size == "*" {
		return 0
	}
	n, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
