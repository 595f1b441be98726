// Package testmsg provides ready-made protobuf messages for exercising the
// mock client and stream helpers. The message types are compiled from an
// embedded .proto source on first use, so no generated code is required;
// every constructor returns a dynamicpb message that behaves like any other
// proto.Message.
package testmsg

import (
	"fmt"
	"sync"

	"github.com/grpckit/grpcmock/pkg/descriptors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

const protoSource = `syntax = "proto3";
package grpcmock.test;

message TestRequest {
  string id = 1;
  string data = 2;
}

message TestResponse {
  int32 code = 1;
  string message = 2;
}

message GetUserRequest {
  string user_id = 1;
}

message User {
  string name = 1;
  int32 age = 2;
}

service UserService {
  rpc GetUser(GetUserRequest) returns (User);
}
`

var (
	compileOnce sync.Once
	registry    *descriptors.Registry
)

func compiled() *descriptors.Registry {
	compileOnce.Do(func() {
		registry = descriptors.NewRegistry()
		if err := registry.Register("grpcmock_test.proto", protoSource); err != nil {
			panic(fmt.Sprintf("testmsg: compile embedded proto: %v", err))
		}
	})
	return registry
}

// Descriptor returns the message descriptor for a short type name such as
// "TestRequest". It panics on unknown names; the embedded source is fixed,
// so a miss is always a typo in the caller.
func Descriptor(name string) protoreflect.MessageDescriptor {
	md, ok := compiled().Message("grpcmock.test." + name)
	if !ok {
		panic(fmt.Sprintf("testmsg: unknown message type %q", name))
	}
	return md
}

// NewRequest builds a TestRequest with the given id and data.
func NewRequest(id, data string) *dynamicpb.Message {
	m := dynamicpb.NewMessage(Descriptor("TestRequest"))
	setString(m, "id", id)
	setString(m, "data", data)
	return m
}

// NewResponse builds a TestResponse with the given code and message.
func NewResponse(code int32, message string) *dynamicpb.Message {
	m := dynamicpb.NewMessage(Descriptor("TestResponse"))
	setInt32(m, "code", code)
	setString(m, "message", message)
	return m
}

// NewGetUserRequest builds a GetUserRequest for the given user id.
func NewGetUserRequest(userID string) *dynamicpb.Message {
	m := dynamicpb.NewMessage(Descriptor("GetUserRequest"))
	setString(m, "user_id", userID)
	return m
}

// NewUser builds a User with the given name and age.
func NewUser(name string, age int32) *dynamicpb.Message {
	m := dynamicpb.NewMessage(Descriptor("User"))
	setString(m, "name", name)
	setInt32(m, "age", age)
	return m
}

// Requests builds count TestRequests with sequential ids ("0", "1", ...) and
// matching data fields, for seeding streaming tests.
func Requests(count int) []*dynamicpb.Message {
	msgs := make([]*dynamicpb.Message, 0, count)
	for i := 0; i < count; i++ {
		msgs = append(msgs, NewRequest(fmt.Sprint(i), fmt.Sprintf("test_data_%d", i)))
	}
	return msgs
}

// GetString reads a string field from any proto message by field name.
// Missing fields read as the zero value, matching proto3 semantics.
func GetString(m proto.Message, field string) string {
	fd := fieldDescriptor(m, field)
	return m.ProtoReflect().Get(fd).String()
}

// GetInt32 reads an int32 field from any proto message by field name.
func GetInt32(m proto.Message, field string) int32 {
	fd := fieldDescriptor(m, field)
	return int32(m.ProtoReflect().Get(fd).Int())
}

func fieldDescriptor(m proto.Message, field string) protoreflect.FieldDescriptor {
	fd := m.ProtoReflect().Descriptor().Fields().ByName(protoreflect.Name(field))
	if fd == nil {
		panic(fmt.Sprintf("testmsg: message %s has no field %q",
			m.ProtoReflect().Descriptor().FullName(), field))
	}
	return fd
}

func setString(m *dynamicpb.Message, field, value string) {
	m.Set(fieldDescriptor(m, field), protoreflect.ValueOfString(value))
}

func setInt32(m *dynamicpb.Message, field string, value int32) {
	m.Set(fieldDescriptor(m, field), protoreflect.ValueOfInt32(value))
}
