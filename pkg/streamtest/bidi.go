package streamtest

import (
	"context"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// outboundBuffer bounds how far a handler can run ahead of the test driving
// it. Handlers that push more unread messages than this will block in SendMsg
// until the test calls Recv.
const outboundBuffer = 64

// Bidi drives a bidirectional streaming handler one exchange at a time: the
// test sends a request, the handler (running on its own goroutine against an
// in-memory grpc.ServerStream) receives it, and whatever it sends back is
// read with Recv. Close the request side with CloseSend and collect the
// handler's return value with Wait.
type Bidi struct {
	srv *bidiServerStream

	closeOnce sync.Once
	finished  chan struct{}
	result    error
}

// NewBidi starts handler on a synthetic stream for fullMethod and returns the
// client-side controls.
func NewBidi(fullMethod string, handler func(stream grpc.ServerStream) error, opts ...Option) *Bidi {
	srv := &bidiServerStream{
		ctx:      buildContext(fullMethod, opts),
		inbound:  make(chan proto.Message),
		outbound: make(chan proto.Message, outboundBuffer),
	}
	b := &Bidi{srv: srv, finished: make(chan struct{})}
	go func() {
		b.result = handler(srv)
		close(b.finished)
	}()
	return b
}

// Send delivers one request message to the handler. It blocks until the
// handler receives it; if the handler has already returned, Send reports the
// handler's error, or io.EOF when it returned nil.
func (b *Bidi) Send(msg proto.Message) error {
	select {
	case b.srv.inbound <- proto.Clone(msg):
		return nil
	case <-b.finished:
		if b.result != nil {
			return b.result
		}
		return io.EOF
	}
}

// Recv returns the next message the handler sent. When the handler has
// returned and no messages remain, Recv returns the handler's error, or
// io.EOF when it returned nil.
func (b *Bidi) Recv() (proto.Message, error) {
	return b.recv(nil)
}

// RecvTimeout is Recv bounded by a timeout, failing with
// codes.DeadlineExceeded when the handler produces nothing in time.
func (b *Bidi) RecvTimeout(timeout time.Duration) (proto.Message, error) {
	return b.recv(time.After(timeout))
}

func (b *Bidi) recv(timeout <-chan time.Time) (proto.Message, error) {
	// Prefer buffered messages over the finished signal, so everything the
	// handler sent before returning is still delivered.
	select {
	case m := <-b.srv.outbound:
		return m, nil
	default:
	}

	select {
	case m := <-b.srv.outbound:
		return m, nil
	case <-b.finished:
		select {
		case m := <-b.srv.outbound:
			return m, nil
		default:
		}
		if b.result != nil {
			return nil, b.result
		}
		return nil, io.EOF
	case <-timeout:
		return nil, status.Error(codes.DeadlineExceeded, "timed out waiting for server message")
	}
}

// CloseSend closes the request side: the handler's next RecvMsg returns
// io.EOF. Safe to call more than once.
func (b *Bidi) CloseSend() {
	b.closeOnce.Do(func() { close(b.srv.inbound) })
}

// Wait blocks until the handler returns and reports its error.
func (b *Bidi) Wait() error {
	<-b.finished
	return b.result
}

// Header returns the response header metadata set by the handler so far.
func (b *Bidi) Header() metadata.MD {
	return b.srv.headerMD()
}

// Trailer returns the trailer metadata set by the handler so far.
func (b *Bidi) Trailer() metadata.MD {
	return b.srv.trailerMD()
}

// bidiServerStream is the handler-facing half of a Bidi: a grpc.ServerStream
// backed by channels instead of a transport.
type bidiServerStream struct {
	ctx      context.Context
	inbound  chan proto.Message
	outbound chan proto.Message

	mu      sync.Mutex
	header  metadata.MD
	trailer metadata.MD
}

var _ grpc.ServerStream = (*bidiServerStream)(nil)

func (s *bidiServerStream) Context() context.Context { return s.ctx }

func (s *bidiServerStream) SetHeader(md metadata.MD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = metadata.Join(s.header, md)
	return nil
}

func (s *bidiServerStream) SendHeader(md metadata.MD) error {
	return s.SetHeader(md)
}

func (s *bidiServerStream) SetTrailer(md metadata.MD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trailer = metadata.Join(s.trailer, md)
}

func (s *bidiServerStream) SendMsg(m any) error {
	msg, ok := m.(proto.Message)
	if !ok {
		return status.Errorf(codes.Internal, "expected proto.Message, got %T", m)
	}
	s.outbound <- proto.Clone(msg)
	return nil
}

func (s *bidiServerStream) RecvMsg(m any) error {
	msg, ok := <-s.inbound
	if !ok {
		return io.EOF
	}
	return copyInto(m, msg)
}

func (s *bidiServerStream) headerMD() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Copy()
}

func (s *bidiServerStream) trailerMD() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trailer.Copy()
}
