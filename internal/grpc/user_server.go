package grpcserver

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"userService/internal/errs"
	"userService/internal/service"
)

const (
	userServiceName = "users.v1.UserService"
	ListUsersMethod = "/" + userServiceName + "/ListUsers"
)

// UserServiceServer is the server API for users.v1.UserService.
type UserServiceServer interface {
	ListUsers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// RegisterUserServiceServer registers impl on s.
func RegisterUserServiceServer(s grpc.ServiceRegistrar, impl UserServiceServer) {
	s.RegisterService(&userServiceDesc, impl)
}

var userServiceDesc = grpc.ServiceDesc{
	ServiceName: userServiceName,
	HandlerType: (*UserServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListUsers", Handler: listUsersHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "users/v1/users.proto",
}

func listUsersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserServiceServer).ListUsers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListUsersMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserServiceServer).ListUsers(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// UserServer answers ListUsers through the users Service, so gRPC callers get
// the same pipeline (offload, pool, logging) as HTTP callers.
type UserServer struct {
	Users service.Service
}

// ListUsers returns the users as a list of structs with the JSON field names.
func (s *UserServer) ListUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	req := &service.Request{Method: http.MethodPost, URI: ListUsersMethod}
	resp, err := s.Users.Call(ctx, req).Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, toStatus(err)
	}
	if resp.Status != http.StatusOK {
		return nil, toStatus(resp.Err)
	}

	var items []any
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, status.Errorf(codes.Internal, "decode users: %v", err)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "convert users: %v", err)
	}
	return list, nil
}

func toStatus(err error) error {
	kind := errs.KindOf(err)
	return status.Error(errs.GRPCCode(kind), string(kind))
}
