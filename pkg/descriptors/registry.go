// Package descriptors turns raw .proto sources held in memory into linked
// message and method descriptors. Tests use it to define request/response
// message types at runtime, without generated code: the resulting descriptors
// back dynamicpb prototypes handed to the mock client registry.
package descriptors

import (
	"context"
	"fmt"
	"sync"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Registry compiles and indexes proto descriptors from in-memory sources.
//
// Two usage patterns:
//   - Register(name, src) ingests and compiles a single file in one call.
//   - Ingest(name, src) several files, then CompileAll() once.
type Registry struct {
	mu sync.RWMutex

	// raw .proto sources keyed by filename, in ingestion order
	sources     map[string]string
	sourceNames []string

	messages map[string]protoreflect.MessageDescriptor
	methods  map[string]protoreflect.MethodDescriptor
}

// NewRegistry returns an empty registry. Standard imports such as
// google/protobuf/timestamp.proto are resolved automatically at compile time.
func NewRegistry() *Registry {
	return &Registry{
		sources:  map[string]string{},
		messages: map[string]protoreflect.MessageDescriptor{},
		methods:  map[string]protoreflect.MethodDescriptor{},
	}
}

// Ingest stores a raw .proto source without compiling it.
func (r *Registry) Ingest(filename, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[filename]; !ok {
		r.sourceNames = append(r.sourceNames, filename)
	}
	r.sources[filename] = content
}

// Register ingests a single .proto source and immediately compiles and
// indexes its descriptors together with everything ingested before it.
func (r *Registry) Register(filename, content string) error {
	r.Ingest(filename, content)
	return r.CompileAll()
}

// CompileAll compiles every ingested source and indexes the resulting
// message and method descriptors.
func (r *Registry) CompileAll() error {
	files, err := r.compile()
	if err != nil {
		return fmt.Errorf("compile proto sources: %w", err)
	}
	r.index(files)
	return nil
}

func (r *Registry) compile() (linker.Files, error) {
	r.mu.RLock()
	accessor := protocompile.SourceAccessorFromMap(r.sources)
	names := make([]string, len(r.sourceNames))
	copy(names, r.sourceNames)
	r.mu.RUnlock()

	resolver := protocompile.WithStandardImports(&protocompile.SourceResolver{
		ImportPaths: []string{"."},
		Accessor:    accessor,
	})
	compiler := protocompile.Compiler{Resolver: resolver}
	return compiler.Compile(context.Background(), names...)
}

// index records message descriptors under their full name and method
// descriptors under "service.FullName/Method".
func (r *Registry) index(files linker.Files) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fd := range files {
		msgs := fd.Messages()
		for i := 0; i < msgs.Len(); i++ {
			md := msgs.Get(i)
			r.messages[string(md.FullName())] = md
		}

		svcs := fd.Services()
		for i := 0; i < svcs.Len(); i++ {
			svc := svcs.Get(i)
			methods := svc.Methods()
			for j := 0; j < methods.Len(); j++ {
				m := methods.Get(j)
				full := fmt.Sprintf("%s/%s", svc.FullName(), m.Name())
				r.methods[full] = m
			}
		}
	}
}

// Message returns the descriptor for a fully-qualified message name.
func (r *Registry) Message(fullName string) (protoreflect.MessageDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.messages[fullName]
	return md, ok
}

// Method returns the descriptor for a full method name of the form
// "package.Service/Method".
func (r *Registry) Method(fullMethod string) (protoreflect.MethodDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.methods[fullMethod]
	return md, ok
}
