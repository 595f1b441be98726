package streamtest

import (
	"errors"
	"io"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Receiver is the receiving half of a client-side response stream. Generated
// server-streaming client stubs satisfy it with T = *YourResponse.
type Receiver[T any] interface {
	Recv() (T, error)
}

// ToSlice drains the stream into a slice. It stops at io.EOF (not an error)
// or at the first stream error, returning whatever was received before it.
func ToSlice[T any](stream Receiver[T]) ([]T, error) {
	return collect(stream, 0)
}

// ToSliceTimeout is ToSlice with a per-message timeout. Waiting longer than
// perMessage for any single message fails with codes.DeadlineExceeded.
func ToSliceTimeout[T any](stream Receiver[T], perMessage time.Duration) ([]T, error) {
	return collect(stream, perMessage)
}

func collect[T any](stream Receiver[T], perMessage time.Duration) ([]T, error) {
	var out []T
	err := process(stream, perMessage, func(_ int, msg T) error {
		out = append(out, msg)
		return nil
	})
	return out, err
}

// Process invokes fn for each received message with its zero-based index,
// until io.EOF, a stream error, or a non-nil return from fn.
func Process[T any](stream Receiver[T], fn func(index int, msg T) error) error {
	return process(stream, 0, fn)
}

// ProcessTimeout is Process with a per-message timeout, as in ToSliceTimeout.
func ProcessTimeout[T any](stream Receiver[T], perMessage time.Duration, fn func(index int, msg T) error) error {
	return process(stream, perMessage, fn)
}

func process[T any](stream Receiver[T], perMessage time.Duration, fn func(index int, msg T) error) error {
	for i := 0; ; i++ {
		msg, err := recvOne(stream, perMessage)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(i, msg); err != nil {
			return err
		}
	}
}

type recvResult[T any] struct {
	msg T
	err error
}

// recvOne waits for the next message, bounded by timeout when nonzero. On
// timeout the in-flight Recv goroutine is abandoned; acceptable for tests,
// where the stream is torn down with the test.
func recvOne[T any](stream Receiver[T], timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return stream.Recv()
	}

	ch := make(chan recvResult[T], 1)
	go func() {
		msg, err := stream.Recv()
		ch <- recvResult[T]{msg: msg, err: err}
	}()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-time.After(timeout):
		var zero T
		return zero, status.Errorf(codes.DeadlineExceeded,
			"timed out after %v waiting for stream message", timeout)
	}
}
