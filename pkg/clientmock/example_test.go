package clientmock_test

import (
	"fmt"

	"github.com/grpckit/grpcmock/pkg/clientmock"
	"github.com/grpckit/grpcmock/pkg/testmsg"
	"github.com/grpckit/grpcmock/pkg/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

// userClient is the kind of thin shim a generated-client wrapper provides: it
// owns the method name and the encode/decode plumbing so application code can
// call GetUser with plain messages.
type userClient struct {
	mock *clientmock.Client
}

func newUserClient(mock *clientmock.Client) *userClient {
	return &userClient{mock: mock}
}

var _ clientmock.ClientConstructor[*userClient] = newUserClient

func (c *userClient) GetUser(userID string) (*dynamicpb.Message, error) {
	reqBytes, err := wire.EncodeRequest(testmsg.NewGetUserRequest(userID))
	if err != nil {
		return nil, err
	}
	respBytes, _, err := c.mock.HandleRequest("user.UserService/GetUser", reqBytes)
	if err != nil {
		return nil, err
	}
	user := dynamicpb.NewMessage(testmsg.Descriptor("User"))
	if err := wire.DecodeMessage(user, respBytes); err != nil {
		return nil, err
	}
	return user, nil
}

func Example() {
	mock := clientmock.New()
	clientmock.Mock(mock, "user.UserService/GetUser",
		testmsg.NewGetUserRequest(""), testmsg.NewUser("", 0)).
		RespondWhen(func(req *dynamicpb.Message) bool {
			return testmsg.GetString(req, "user_id") == "user1"
		}, clientmock.OK(testmsg.NewUser("Alice", 30))).
		RespondWith(clientmock.Err[*dynamicpb.Message](codes.NotFound, "User not found"))

	client := newUserClient(mock)

	user, err := client.GetUser("user1")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("%s is %d\n", testmsg.GetString(user, "name"), testmsg.GetInt32(user, "age"))

	if _, err := client.GetUser("user2"); err != nil {
		st, _ := status.FromError(err)
		fmt.Printf("%s: %s\n", st.Code(), st.Message())
	}

	// Output:
	// Alice is 30
	// NotFound: User not found
}
