package api

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/api/proto"
	"github.com/heysubinoy/opus/internal/command"
	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/jmgilman/go/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCServer implements the proto.OpusServer interface.
type GRPCServer struct {
	proto.UnimplementedOpusServer
	svc *Service
}

// Compile-time check to ensure GRPCServer implements proto.OpusServer.
var _ proto.OpusServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server over svc.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// Login authenticates the user and returns a session.
func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := proto.StringField(req, proto.FieldUsername)
	if username == "" {
		return nil, status.Error(codes.InvalidArgument, "username is required")
	}
	token, id, err := s.svc.Login(username, proto.StringField(req, proto.FieldPassword))
	if err != nil {
		return nil, toStatus(err)
	}
	return proto.Session(token, id.Username, id.Role), nil
}

// Register creates a user and returns a session.
func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token, id, err := s.svc.Register(proto.StringField(req, proto.FieldUsername), proto.StringField(req, proto.FieldPassword))
	if err != nil {
		return nil, toStatus(err)
	}
	return proto.Session(token, id.Username, id.Role), nil
}

// Execute runs one command for the session named in the request metadata.
func (s *GRPCServer) Execute(ctx context.Context, req *structpb.ListValue) (*structpb.Value, error) {
	args := make([]string, 0, len(req.GetValues()))
	for _, v := range req.GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "command arguments must be strings")
		}
		args = append(args, sv.StringValue)
	}

	reply, err := s.svc.Execute(ctx, bearerToken(ctx), args)
	if err != nil {
		if errors.Is(err, ErrNotLeader) {
			return nil, status.Errorf(codes.Unavailable, "not leader, current leader: %q", s.svc.Leader())
		}
		return nil, toStatus(err)
	}
	return command.ToValue(reply), nil
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(proto.AuthorizationHeader) {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return token
		}
	}
	return ""
}

// toStatus maps a coded error to a gRPC status.
func toStatus(err error) error {
	var c codes.Code
	switch errors.GetCode(err) {
	case kv.CodeWrongKind, errors.CodeInvalidConfig:
		c = codes.FailedPrecondition
	case errors.CodeInvalidInput:
		c = codes.InvalidArgument
	case errors.CodeNotImplemented:
		c = codes.Unimplemented
	case errors.CodeForbidden:
		c = codes.PermissionDenied
	case errors.CodeUnauthorized:
		c = codes.Unauthenticated
	case errors.CodeNotFound:
		c = codes.NotFound
	case errors.CodeAlreadyExists:
		c = codes.AlreadyExists
	case errors.CodeUnavailable:
		c = codes.Unavailable
	default:
		c = codes.Internal
	}
	return status.Error(c, err.Error())
}

// UnaryLogger logs every unary call with its status code and duration.
func UnaryLogger(logger hclog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc", "method", info.FullMethod, "code", status.Code(err), "duration", time.Since(start))
		return resp, err
	}
}
