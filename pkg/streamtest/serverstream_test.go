package streamtest_test

import (
	"io"
	"testing"

	"github.com/grpckit/grpcmock/pkg/streamtest"
	"github.com/grpckit/grpcmock/pkg/testmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

const streamMethod = "/grpcmock.test.UserService/StreamUsers"

func asMessages(msgs []*dynamicpb.Message) []proto.Message {
	out := make([]proto.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	return out
}

// echoHandler is a typical client-streaming handler: it reads every request
// and answers each one with a response echoing the request id.
func echoHandler(stream grpc.ServerStream) error {
	for {
		req := dynamicpb.NewMessage(testmsg.Descriptor("TestRequest"))
		if err := stream.RecvMsg(req); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		resp := testmsg.NewResponse(200, "echo:"+testmsg.GetString(req, "id"))
		if err := stream.SendMsg(resp); err != nil {
			return err
		}
	}
}

func TestServerStreamDeliversInOrderThenEOF(t *testing.T) {
	stream := streamtest.NewServerStream(streamMethod, asMessages(testmsg.Requests(3)))

	require.NoError(t, echoHandler(stream))

	sent := stream.Sent()
	require.Len(t, sent, 3)
	for i, m := range sent {
		assert.Equal(t, "echo:"+string(rune('0'+i)), testmsg.GetString(m, "message"))
	}

	// Stream is exhausted: the next receive reports EOF.
	req := dynamicpb.NewMessage(testmsg.Descriptor("TestRequest"))
	assert.Equal(t, io.EOF, stream.RecvMsg(req))
}

func TestServerStreamMethodAndMetadata(t *testing.T) {
	md := metadata.Pairs("authorization", "Bearer token", "x-tenant", "acme")
	stream := streamtest.NewServerStream(streamMethod, nil, streamtest.WithIncomingMetadata(md))

	method, ok := grpc.MethodFromServerStream(stream)
	require.True(t, ok)
	assert.Equal(t, streamMethod, method)

	got, ok := metadata.FromIncomingContext(stream.Context())
	require.True(t, ok)
	assert.Equal(t, []string{"Bearer token"}, got.Get("authorization"))
	assert.Equal(t, []string{"acme"}, got.Get("x-tenant"))
}

func TestServerStreamCapturesHeaderAndTrailer(t *testing.T) {
	stream := streamtest.NewServerStream(streamMethod, nil)

	require.NoError(t, stream.SetHeader(metadata.Pairs("h1", "a")))
	require.NoError(t, stream.SendHeader(metadata.Pairs("h2", "b")))
	stream.SetTrailer(metadata.Pairs("t1", "c"))

	assert.Equal(t, []string{"a"}, stream.Header().Get("h1"))
	assert.Equal(t, []string{"b"}, stream.Header().Get("h2"))
	assert.Equal(t, []string{"c"}, stream.Trailer().Get("t1"))
}

func TestServerStreamClonesMessages(t *testing.T) {
	seed := testmsg.NewRequest("orig", "data")
	stream := streamtest.NewServerStream(streamMethod, []proto.Message{seed})

	// Mutating the seed after construction must not leak into the stream.
	fd := seed.Descriptor().Fields().ByName("id")
	seed.Set(fd, protoreflect.ValueOfString("mutated"))

	got := dynamicpb.NewMessage(testmsg.Descriptor("TestRequest"))
	require.NoError(t, stream.RecvMsg(got))
	assert.Equal(t, "orig", testmsg.GetString(got, "id"))

	// Same for sent messages.
	resp := testmsg.NewResponse(1, "before")
	require.NoError(t, stream.SendMsg(resp))
	resp.Set(resp.Descriptor().Fields().ByName("message"), protoreflect.ValueOfString("after"))
	assert.Equal(t, "before", testmsg.GetString(stream.Sent()[0], "message"))
}

func TestServerStreamRejectsNonProto(t *testing.T) {
	stream := streamtest.NewServerStream(streamMethod, asMessages(testmsg.Requests(1)))

	assert.Error(t, stream.SendMsg("not a proto"))
	var dst string
	assert.Error(t, stream.RecvMsg(&dst))
}
