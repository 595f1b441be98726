// Package wire implements the gRPC message framing used between a client and
// a server: a one-byte compression flag followed by a four-byte big-endian
// payload length and the proto-encoded payload. The mock client exchanges
// requests and responses in this format so that code under test sees the same
// bytes a real transport would carry.
package wire

import (
	"encoding/binary"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// headerLen is the size of the gRPC frame prefix: 1 byte compression flag +
// 4 bytes big-endian message length.
const headerLen = 5

// EncodeRequest frames a request message for the mock transport.
func EncodeRequest(msg proto.Message) ([]byte, error) {
	return encode(msg)
}

// EncodeResponse frames a response message for the mock transport.
func EncodeResponse(msg proto.Message) ([]byte, error) {
	return encode(msg)
}

func encode(msg proto.Message) ([]byte, error) {
	payload, err := proto.Marshal(msg)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "marshal message: %v", err)
	}

	buf := make([]byte, headerLen+len(payload))
	buf[0] = 0 // no compression
	binary.BigEndian.PutUint32(buf[1:headerLen], uint32(len(payload)))
	copy(buf[headerLen:], payload)
	return buf, nil
}

// DecodeMessage unframes b into dst. Malformed frames and payloads that do not
// parse as dst's message type yield an InvalidArgument status; a nonzero
// compression flag yields Unimplemented.
func DecodeMessage(dst proto.Message, b []byte) error {
	if len(b) < headerLen {
		return status.Error(codes.InvalidArgument, "message too short")
	}

	if b[0] != 0 {
		return status.Error(codes.Unimplemented, "compression not supported")
	}

	msgLen := int(binary.BigEndian.Uint32(b[1:headerLen]))
	if len(b) < headerLen+msgLen {
		return status.Errorf(codes.InvalidArgument,
			"message incomplete: expected %d bytes, got %d", msgLen, len(b)-headerLen)
	}

	if err := proto.Unmarshal(b[headerLen:headerLen+msgLen], dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "failed to decode message: %v", err)
	}
	return nil
}

// MethodPath builds the full method path for a service and method,
// e.g. MethodPath("example.Greeter", "SayHello") == "/example.Greeter/SayHello".
func MethodPath(service, method string) string {
	return "/" + service + "/" + method
}
