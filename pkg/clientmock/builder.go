package clientmock

import "google.golang.org/protobuf/proto"

// Builder is the per-method registration handle returned by Mock. Every call
// returns the builder itself so registrations read as one fluent chain. It
// holds nothing beyond a reference to the method's rule set, so it may be
// created freely, kept around, and used after the registry has been handed to
// the code under test.
type Builder[Req, Resp proto.Message] struct {
	rules *ruleSet[Req, Resp]
}

// RespondWhen appends a conditional rule: requests matching the predicate
// resolve to def. Rules are evaluated in the order they were added and the
// first match wins, so register the most specific rules first.
func (b *Builder[Req, Resp]) RespondWhen(match Predicate[Req], def ResponseDefinition[Resp]) *Builder[Req, Resp] {
	b.rules.appendRule(match, def)
	return b
}

// RespondWith replaces the default outcome used when no rule matches (or none
// are registered). Until it is called, unmatched requests fail with an
// internal-error status naming the method.
func (b *Builder[Req, Resp]) RespondWith(def ResponseDefinition[Resp]) *Builder[Req, Resp] {
	b.rules.setFallback(def)
	return b
}

// Reset clears this method's rules and restores its implicit default,
// leaving every other mocked method untouched.
func (b *Builder[Req, Resp]) Reset() *Builder[Req, Resp] {
	b.rules.resetRules()
	return b
}
