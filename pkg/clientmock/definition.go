package clientmock

import (
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// ResponseDefinition is an immutable description of one canned outcome for a
// mocked method: either a success payload with optional response metadata and
// an optional simulated-latency delay, or a failure status.
//
// Build one with OK or Err and refine it with the chainable With* methods.
// All builder steps are pure: they return a modified copy and never fail.
type ResponseDefinition[Resp proto.Message] struct {
	payload Resp
	ok      bool

	failure *status.Status

	md    [][2]string
	delay time.Duration
}

// OK builds a success definition wrapping payload, with no metadata and no
// delay.
func OK[Resp proto.Message](payload Resp) ResponseDefinition[Resp] {
	return ResponseDefinition[Resp]{payload: payload, ok: true}
}

// Err builds a failure definition. Handling a request that resolves to it
// returns status.Error(code, message) to the caller, with no payload bytes.
func Err[Resp proto.Message](code codes.Code, message string) ResponseDefinition[Resp] {
	return ResponseDefinition[Resp]{failure: status.New(code, message)}
}

// WithMetadata adds one response metadata entry. Entries accumulate in the
// order added. Calling it on a failure definition is a no-op: metadata is only
// meaningful on success, and keeping the step total keeps builder chains
// usable with either variant.
func (d ResponseDefinition[Resp]) WithMetadata(key, value string) ResponseDefinition[Resp] {
	if !d.ok {
		return d
	}
	d.md = append(slices.Clone(d.md), [2]string{key, value})
	return d
}

// WithDelay sets (or overwrites) the simulated network latency applied before
// the response is produced. No-op on a failure definition, like WithMetadata.
func (d ResponseDefinition[Resp]) WithDelay(delay time.Duration) ResponseDefinition[Resp] {
	if !d.ok {
		return d
	}
	d.delay = delay
	return d
}

// metadataMD materializes the accumulated pairs as gRPC metadata.
func (d ResponseDefinition[Resp]) metadataMD() metadata.MD {
	md := metadata.MD{}
	for _, kv := range d.md {
		md.Append(kv[0], kv[1])
	}
	return md
}
