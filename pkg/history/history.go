// Package history records the requests handled by a mock client so that tests
// can assert on what the code under test actually called.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
)

// Call is one handled request and its resolved outcome.
type Call struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	FullMethod string     `json:"fullMethod"`
	Request    []byte     `json:"request"`
	Code       codes.Code `json:"code"`
	Message    string     `json:"message"`
}

// NewCall stamps a fresh record for a request about to be handled.
// The outcome fields are filled in by the caller once resolution finishes.
func NewCall(fullMethod string, request []byte) Call {
	return Call{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		FullMethod: fullMethod,
		Request:    request,
	}
}

// Recorder receives one record per handled request.
type Recorder interface {
	Record(Call)
}

// Reader exposes the recorded calls.
type Reader interface {
	Calls() []Call
}

// MemoryRecorder keeps records in memory, in arrival order.
type MemoryRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *MemoryRecorder) Record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls returns a copy of the recorded calls.
func (r *MemoryRecorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset discards everything recorded so far.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
