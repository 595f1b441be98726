package clientmock

import (
	"sync"
	"time"

	"github.com/grpckit/grpcmock/pkg/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Predicate decides whether a rule applies to a decoded request.
// Predicates must be plain synchronous functions: they are evaluated while
// the rule set's lock is held.
type Predicate[Req proto.Message] func(Req) bool

// rule pairs a predicate with the outcome to produce when it matches.
type rule[Req, Resp proto.Message] struct {
	match Predicate[Req]
	def   ResponseDefinition[Resp]
}

// methodHandler is the type-erased rule set stored per full method name:
// encoded request bytes in, encoded response bytes and metadata (or a status
// error) out.
type methodHandler interface {
	handle(reqBytes []byte) ([]byte, metadata.MD, error)
	binding() (req, resp protoreflect.FullName)
}

// ruleSet holds the ordered rules and the default outcome for exactly one
// method, bound to one (Req, Resp) message pair fixed at creation time.
type ruleSet[Req, Resp proto.Message] struct {
	fullMethod string
	reqProto   Req
	respProto  Resp

	mu       sync.Mutex
	rules    []rule[Req, Resp]
	fallback ResponseDefinition[Resp]
}

func newRuleSet[Req, Resp proto.Message](fullMethod string, reqProto Req, respProto Resp) *ruleSet[Req, Resp] {
	rs := &ruleSet[Req, Resp]{
		fullMethod: fullMethod,
		reqProto:   reqProto,
		respProto:  respProto,
	}
	rs.fallback = rs.safetyNet()
	return rs
}

// safetyNet is the implicit default until RespondWith overwrites it: reaching
// it means the test mocked the method but never configured an outcome.
func (rs *ruleSet[Req, Resp]) safetyNet() ResponseDefinition[Resp] {
	return Err[Resp](codes.Internal, "no response configured for "+rs.fullMethod)
}

func (rs *ruleSet[Req, Resp]) appendRule(match Predicate[Req], def ResponseDefinition[Resp]) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules = append(rs.rules, rule[Req, Resp]{match: match, def: def})
}

func (rs *ruleSet[Req, Resp]) setFallback(def ResponseDefinition[Resp]) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.fallback = def
}

// resetRules clears the rule list and restores the internal safety net,
// scoped to this one method.
func (rs *ruleSet[Req, Resp]) resetRules() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules = nil
	rs.fallback = rs.safetyNet()
}

// handle decodes the request, selects the first rule whose predicate matches
// (insertion order), falls back to the default, then produces the outcome.
// The simulated delay runs after the lock is released so slow rules never
// stall other callers.
func (rs *ruleSet[Req, Resp]) handle(reqBytes []byte) ([]byte, metadata.MD, error) {
	req := rs.newRequest()
	if err := wire.DecodeMessage(req, reqBytes); err != nil {
		return nil, nil, err
	}

	rs.mu.Lock()
	def := rs.fallback
	for _, r := range rs.rules {
		if r.match(req) {
			def = r.def
			break
		}
	}
	rs.mu.Unlock()

	if def.delay > 0 {
		time.Sleep(def.delay)
	}

	if !def.ok {
		return nil, nil, def.failure.Err()
	}

	respBytes, err := wire.EncodeResponse(def.payload)
	if err != nil {
		return nil, nil, status.Errorf(codes.Internal, "encode response for %s: %v", rs.fullMethod, err)
	}
	return respBytes, def.metadataMD(), nil
}

// newRequest builds a fresh, empty request instance from the prototype, so
// dynamic and generated message types both decode correctly.
func (rs *ruleSet[Req, Resp]) newRequest() Req {
	return rs.reqProto.ProtoReflect().New().Interface().(Req)
}

func (rs *ruleSet[Req, Resp]) binding() (protoreflect.FullName, protoreflect.FullName) {
	return rs.reqProto.ProtoReflect().Descriptor().FullName(),
		rs.respProto.ProtoReflect().Descriptor().FullName()
}
