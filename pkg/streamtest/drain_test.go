package streamtest_test

import (
	"io"
	"testing"
	"time"

	"github.com/grpckit/grpcmock/pkg/streamtest"
	"github.com/grpckit/grpcmock/pkg/testmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

// sliceReceiver plays back a fixed sequence like a generated streaming stub:
// messages in order, then the terminal error (io.EOF for a clean finish).
type sliceReceiver struct {
	msgs     []*dynamicpb.Message
	terminal error
}

func (r *sliceReceiver) Recv() (*dynamicpb.Message, error) {
	if len(r.msgs) == 0 {
		return nil, r.terminal
	}
	next := r.msgs[0]
	r.msgs = r.msgs[1:]
	return next, nil
}

// blockingReceiver never produces a message.
type blockingReceiver struct{}

func (blockingReceiver) Recv() (*dynamicpb.Message, error) {
	select {}
}

func TestToSliceDrainsUntilEOF(t *testing.T) {
	stream := &sliceReceiver{msgs: testmsg.Requests(4), terminal: io.EOF}

	got, err := streamtest.ToSlice[*dynamicpb.Message](stream)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, m := range got {
		assert.Equal(t, string(rune('0'+i)), testmsg.GetString(m, "id"))
	}
}

func TestToSlicePropagatesStreamError(t *testing.T) {
	streamErr := status.Error(codes.Unavailable, "connection reset")
	stream := &sliceReceiver{msgs: testmsg.Requests(2), terminal: streamErr}

	got, err := streamtest.ToSlice[*dynamicpb.Message](stream)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Len(t, got, 2, "messages received before the error are kept")
}

func TestToSliceTimeout(t *testing.T) {
	_, err := streamtest.ToSliceTimeout[*dynamicpb.Message](blockingReceiver{}, 30*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestProcessIndicesAndStop(t *testing.T) {
	stream := &sliceReceiver{msgs: testmsg.Requests(5), terminal: io.EOF}

	var indices []int
	err := streamtest.Process[*dynamicpb.Message](stream, func(i int, m *dynamicpb.Message) error {
		indices = append(indices, i)
		assert.Equal(t, string(rune('0'+i)), testmsg.GetString(m, "id"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, indices)
}

func TestProcessStopsOnCallbackError(t *testing.T) {
	stream := &sliceReceiver{msgs: testmsg.Requests(5), terminal: io.EOF}
	stop := status.Error(codes.Aborted, "seen enough")

	calls := 0
	err := streamtest.Process[*dynamicpb.Message](stream, func(i int, _ *dynamicpb.Message) error {
		calls++
		if i == 2 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 3, calls)
}

func TestProcessTimeoutCoversSlowMessages(t *testing.T) {
	err := streamtest.ProcessTimeout[*dynamicpb.Message](blockingReceiver{}, 30*time.Millisecond,
		func(int, *dynamicpb.Message) error { return nil })
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}
