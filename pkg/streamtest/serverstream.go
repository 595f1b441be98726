// Package streamtest synthesizes gRPC streams in memory so streaming handlers
// and stream-consuming code can be exercised without a listener. ServerStream
// drives a server-side handler from a fixed list of inbound messages and
// captures everything it sends; Bidi does the same one exchange at a time for
// bidirectional handlers; ToSlice and Process drain client-side response
// streams, optionally with a per-message timeout.
package streamtest

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

type config struct {
	ctx context.Context
	md  metadata.MD
}

// Option adjusts how a synthetic stream is built.
type Option func(*config)

// WithIncomingMetadata attaches request metadata, visible to the handler via
// metadata.FromIncomingContext.
func WithIncomingMetadata(md metadata.MD) Option {
	return func(c *config) { c.md = metadata.Join(c.md, md) }
}

// WithContext sets the base context for the stream, e.g. one with a deadline
// or cancellation controlled by the test.
func WithContext(ctx context.Context) Option {
	return func(c *config) { c.ctx = ctx }
}

func buildContext(fullMethod string, opts []Option) context.Context {
	cfg := config{ctx: context.Background()}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx := cfg.ctx
	if len(cfg.md) > 0 {
		ctx = metadata.NewIncomingContext(ctx, cfg.md)
	}
	return grpc.NewContextWithServerTransportStream(ctx, &serverTransportStream{method: fullMethod})
}

// serverTransportStream carries the method name so grpc.MethodFromServerStream
// works on synthetic streams.
type serverTransportStream struct {
	method string
}

func (s *serverTransportStream) Method() string               { return s.method }
func (s *serverTransportStream) SetHeader(metadata.MD) error  { return nil }
func (s *serverTransportStream) SendHeader(metadata.MD) error { return nil }
func (s *serverTransportStream) SetTrailer(metadata.MD) error { return nil }

// ServerStream is an in-memory grpc.ServerStream seeded with a fixed sequence
// of inbound messages. The handler under test receives them in order from
// RecvMsg, then io.EOF; everything it sends is captured for assertions.
type ServerStream struct {
	ctx context.Context

	mu      sync.Mutex
	pending []proto.Message
	sent    []proto.Message
	header  metadata.MD
	trailer metadata.MD
}

var _ grpc.ServerStream = (*ServerStream)(nil)

// NewServerStream builds a stream for fullMethod (e.g.
// "/example.Greeter/SayHello") delivering the given messages. The messages
// are cloned, so reusing or mutating them after the call is safe.
func NewServerStream(fullMethod string, inbound []proto.Message, opts ...Option) *ServerStream {
	pending := make([]proto.Message, len(inbound))
	for i, m := range inbound {
		pending[i] = proto.Clone(m)
	}
	return &ServerStream{
		ctx:     buildContext(fullMethod, opts),
		pending: pending,
	}
}

func (s *ServerStream) Context() context.Context { return s.ctx }

func (s *ServerStream) SetHeader(md metadata.MD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = metadata.Join(s.header, md)
	return nil
}

func (s *ServerStream) SendHeader(md metadata.MD) error {
	return s.SetHeader(md)
}

func (s *ServerStream) SetTrailer(md metadata.MD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trailer = metadata.Join(s.trailer, md)
}

func (s *ServerStream) SendMsg(m any) error {
	msg, ok := m.(proto.Message)
	if !ok {
		return status.Errorf(codes.Internal, "expected proto.Message, got %T", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, proto.Clone(msg))
	return nil
}

func (s *ServerStream) RecvMsg(m any) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return io.EOF
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()
	return copyInto(m, next)
}

// Sent returns the messages the handler has sent so far, in order.
func (s *ServerStream) Sent() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// Header returns the accumulated response header metadata.
func (s *ServerStream) Header() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Copy()
}

// Trailer returns the accumulated trailer metadata.
func (s *ServerStream) Trailer() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trailer.Copy()
}

// copyInto transfers src into the handler-supplied destination through a
// marshal round trip, so dynamic and generated message types interoperate.
func copyInto(dst any, src proto.Message) error {
	target, ok := dst.(proto.Message)
	if !ok {
		return status.Errorf(codes.Internal, "expected proto.Message, got %T", dst)
	}
	b, err := proto.Marshal(src)
	if err != nil {
		return status.Errorf(codes.Internal, "marshal stream message: %v", err)
	}
	proto.Reset(target)
	if err := proto.Unmarshal(b, target); err != nil {
		return status.Errorf(codes.Internal, "unmarshal stream message: %v", err)
	}
	return nil
}
