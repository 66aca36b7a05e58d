package rpc

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	structpb "google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct documents shaped like the HTTP API bodies.
const ServiceName = "coopledger.v1.Provisioning"

const (
	OpenAccountMethod   = "/" + ServiceName + "/OpenAccount"
	VerifyVoucherMethod = "/" + ServiceName + "/VerifyVoucher"
	GetVoucherMethod    = "/" + ServiceName + "/GetVoucher"
)

type ProvisioningClient interface {
	OpenAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	VerifyVoucher(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetVoucher(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type provisioningClient struct {
	cc grpc.ClientConnInterface
}

func NewProvisioningClient(cc grpc.ClientConnInterface) ProvisioningClient {
	return &provisioningClient{cc: cc}
}

func (c *provisioningClient) OpenAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, OpenAccountMethod, in, opts...)
}

func (c *provisioningClient) VerifyVoucher(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, VerifyVoucherMethod, in, opts...)
}

func (c *provisioningClient) GetVoucher(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetVoucherMethod, in, opts...)
}

func (c *provisioningClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type ProvisioningServer interface {
	OpenAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyVoucher(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetVoucher(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedProvisioningServer can be embedded to have forward compatible implementations.
type UnimplementedProvisioningServer struct{}

func (UnimplementedProvisioningServer) OpenAccount(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method OpenAccount not implemented")
}

func (UnimplementedProvisioningServer) VerifyVoucher(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyVoucher not implemented")
}

func (UnimplementedProvisioningServer) GetVoucher(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetVoucher not implemented")
}

func RegisterProvisioningServer(s grpc.ServiceRegistrar, srv ProvisioningServer) {
	s.RegisterService(&ProvisioningServiceDesc, srv)
}

func unaryHandler(method string, call func(ProvisioningServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ProvisioningServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ProvisioningServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ProvisioningServiceDesc is the grpc.ServiceDesc for the Provisioning service.
var ProvisioningServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProvisioningServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenAccount", Handler: unaryHandler(OpenAccountMethod, ProvisioningServer.OpenAccount)},
		{MethodName: "VerifyVoucher", Handler: unaryHandler(VerifyVoucherMethod, ProvisioningServer.VerifyVoucher)},
		{MethodName: "GetVoucher", Handler: unaryHandler(GetVoucherMethod, ProvisioningServer.GetVoucher)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coopledger/v1/provisioning.proto",
}
