// Package proto defines the opus.v1.Opus gRPC service. Requests and
// responses are protobuf well-known types, so the service needs no
// generated message code.
//
//	service Opus {
//	  rpc Login(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Register(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Execute(google.protobuf.ListValue) returns (google.protobuf.Value);
//	}
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "opus.v1.Opus"

	LoginFullMethodName    = "/opus.v1.Opus/Login"
	RegisterFullMethodName = "/opus.v1.Opus/Register"
	ExecuteFullMethodName  = "/opus.v1.Opus/Execute"
)

// Field names used in Login and Register messages.
const (
	FieldUsername = "username"
	FieldPassword = "password"
	FieldToken    = "token"
	FieldRole     = "role"
)

// AuthorizationHeader carries "Bearer <token>" on Execute calls.
const AuthorizationHeader = "authorization"

// OpusServer is the server API for the Opus service.
type OpusServer interface {
	// Login authenticates a user and returns a session token and role.
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Register creates a standard user and logs it in.
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Execute runs one command; the list holds the command name and its arguments.
	Execute(context.Context, *structpb.ListValue) (*structpb.Value, error)
}

// UnimplementedOpusServer can be embedded to satisfy OpusServer.
type UnimplementedOpusServer struct{}

func (UnimplementedOpusServer) Login(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}

func (UnimplementedOpusServer) Register(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}

func (UnimplementedOpusServer) Execute(context.Context, *structpb.ListValue) (*structpb.Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Execute not implemented")
}

// RegisterOpusServer registers srv with s.
func RegisterOpusServer(s grpc.ServiceRegistrar, srv OpusServer) {
	s.RegisterService(&OpusServiceDesc, srv)
}

func loginHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OpusServer).Login(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LoginFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OpusServer).Login(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func registerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OpusServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RegisterFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OpusServer).Register(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OpusServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExecuteFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OpusServer).Execute(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// OpusServiceDesc is the grpc.ServiceDesc for the Opus service.
var OpusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OpusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: loginHandler},
		{MethodName: "Register", Handler: registerHandler},
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "opus/v1/opus.proto",
}

// OpusClient is the client API for the Opus service.
type OpusClient interface {
	Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Execute(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.Value, error)
}

type opusClient struct {
	cc grpc.ClientConnInterface
}

// NewOpusClient returns a client bound to cc.
func NewOpusClient(cc grpc.ClientConnInterface) OpusClient {
	return &opusClient{cc: cc}
}

func (c *opusClient) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LoginFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *opusClient) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RegisterFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *opusClient) Execute(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.Value, error) {
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, ExecuteFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Credentials builds a Login or Register request.
func Credentials(username, password string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldUsername: structpb.NewStringValue(username),
		FieldPassword: structpb.NewStringValue(password),
	}}
}

// Session builds a Login or Register response.
func Session(token, username, role string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldToken:    structpb.NewStringValue(token),
		FieldUsername: structpb.NewStringValue(username),
		FieldRole:     structpb.NewStringValue(role),
	}}
}

// Command builds an Execute request from a command name and arguments.
func Command(args []string) *structpb.ListValue {
	vals := make([]*structpb.Value, len(args))
	for i, a := range args {
		vals[i] = structpb.NewStringValue(a)
	}
	return &structpb.ListValue{Values: vals}
}

// StringField returns the string value of name in s, or "".
func StringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}
