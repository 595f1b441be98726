// Package clientmock provides a mockable gRPC client: a registry that binds
// full method names to programmable response rules and then handles encoded
// requests the way a real client transport would, including simulated
// latency, response metadata, and gRPC status errors.
//
// A test configures the registry up front and hands it to the code under
// test, typically through a thin client shim (see ClientConstructor):
//
//	mock := clientmock.New()
//	clientmock.Mock(mock, "user.UserService/GetUser",
//		testmsg.NewGetUserRequest(""), testmsg.NewUser("", 0)).
//		RespondWhen(func(req *dynamicpb.Message) bool {
//			return testmsg.GetString(req, "user_id") == "admin"
//		}, clientmock.OK(testmsg.NewUser("Administrator", 52))).
//		RespondWith(clientmock.Err[*dynamicpb.Message](codes.NotFound, "user not found"))
//
// Rules are evaluated in registration order and the first match wins; the
// definition passed to RespondWith answers everything no rule claims.
package clientmock

import (
	"fmt"
	"sync"

	"github.com/grpckit/grpcmock/pkg/history"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// Client is the mockable client registry: a concurrency-safe map from full
// method name (e.g. "user.UserService/GetUser") to that method's rule set.
//
// A *Client is a cheap shared handle; pass the same pointer to every test
// helper and to the code under test so all of them observe one rule table.
// Construct one per test (or per test package) with New — there is no hidden
// process-wide instance.
type Client struct {
	mu       sync.Mutex
	handlers map[string]methodHandler
	recorder history.Recorder
}

// New returns an empty registry, ready for use.
func New() *Client {
	return &Client{handlers: map[string]methodHandler{}}
}

// SetRecorder attaches a call recorder. Every subsequent HandleRequest
// invocation is recorded with its resolved status. A nil recorder disables
// recording.
func (c *Client) SetRecorder(r history.Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// Mock fetches or creates the rule set for fullMethod, bound to the message
// types of the two prototypes, and returns the registration builder for it.
// The prototypes are never mutated; they only carry the type information
// needed to decode requests and encode responses (any message value works,
// including an empty one).
//
// Mock is idempotent for a given method and binding. Calling it again for the
// same method with different message types panics: that is a bug in the test,
// and reinterpreting bytes under the wrong type would corrupt every assertion
// downstream.
func Mock[Req, Resp proto.Message](c *Client, fullMethod string, reqProto Req, respProto Resp) *Builder[Req, Resp] {
	c.mu.Lock()
	h, ok := c.handlers[fullMethod]
	if !ok {
		h = newRuleSet(fullMethod, reqProto, respProto)
		c.handlers[fullMethod] = h
	}
	c.mu.Unlock()

	rs, ok := h.(*ruleSet[Req, Resp])
	if !ok {
		panic(bindingMismatch(fullMethod, h, reqProto, respProto))
	}
	// Go types alone cannot tell two dynamicpb bindings apart, so compare the
	// message descriptors as well.
	wantReq := reqProto.ProtoReflect().Descriptor().FullName()
	wantResp := respProto.ProtoReflect().Descriptor().FullName()
	gotReq, gotResp := rs.binding()
	if gotReq != wantReq || gotResp != wantResp {
		panic(bindingMismatch(fullMethod, h, reqProto, respProto))
	}

	return &Builder[Req, Resp]{rules: rs}
}

func bindingMismatch(fullMethod string, h methodHandler, reqProto, respProto proto.Message) string {
	gotReq, gotResp := h.binding()
	return fmt.Sprintf(
		"grpcmock: method %s is already mocked with (%s, %s), cannot rebind to (%s, %s)",
		fullMethod, gotReq, gotResp,
		reqProto.ProtoReflect().Descriptor().FullName(),
		respProto.ProtoReflect().Descriptor().FullName(),
	)
}

// HandleRequest resolves an encoded request against the rules registered for
// fullMethod and returns the encoded response plus its metadata, or a status
// error. Methods that were never mocked fail with codes.Unimplemented;
// undecodable request bytes fail with codes.InvalidArgument before any
// predicate runs.
func (c *Client) HandleRequest(fullMethod string, reqBytes []byte) ([]byte, metadata.MD, error) {
	c.mu.Lock()
	h, ok := c.handlers[fullMethod]
	rec := c.recorder
	c.mu.Unlock()

	var (
		respBytes []byte
		md        metadata.MD
		err       error
	)
	if !ok {
		err = status.Errorf(codes.Unimplemented, "no mock registered for %s", fullMethod)
	} else {
		respBytes, md, err = h.handle(reqBytes)
	}

	if rec != nil {
		call := history.NewCall(fullMethod, reqBytes)
		if st, ok := status.FromError(err); ok && err != nil {
			call.Code = st.Code()
			call.Message = st.Message()
		}
		rec.Record(call)
	}

	return respBytes, md, err
}

// Reset clears every mocked method, for reuse of the same registry across
// test cases. Handling any request afterwards fails with codes.Unimplemented
// until the method is mocked again.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = map[string]methodHandler{}
}

// ClientConstructor is the seam a concrete client shim implements to be
// constructible from a mock registry. A generated-client wrapper typically
// satisfies it with a plain constructor:
//
//	func NewUserClient(mock *clientmock.Client) *UserClient {
//		return &UserClient{mock: mock}
//	}
//
//	var _ clientmock.ClientConstructor[*UserClient] = NewUserClient
type ClientConstructor[C any] func(mock *Client) C
