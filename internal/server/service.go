// ABOUTME: Service descriptor, handlers and client of the hsplines.HBasis service
// ABOUTME: Messages travel as protobuf through the codec registered below

package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content subtype of HBasis messages. The codec
// replaces the default protobuf codec and defers to it for generated
// messages.
const CodecName = "proto"

type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.Marshal(), nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("hbasis codec: cannot marshal %T", v)
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case wireMessage:
		return m.Unmarshal(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("hbasis codec: cannot unmarshal into %T", v)
}

func (wireCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// ServiceName is the fully qualified gRPC service name
const ServiceName = "hsplines.HBasis"

// HBasisServer is the server API of the HBasis service
type HBasisServer interface {
	CreateBasis(context.Context, *CreateBasisRequest) (*CreateBasisResponse, error)
	Refine(context.Context, *RefineRequest) (*RefineResponse, error)
	RefineElements(context.Context, *RefineElementsRequest) (*RefineResponse, error)
	UniformRefine(context.Context, *UniformRefineRequest) (*RefineResponse, error)
	ActiveAt(context.Context, *ActiveAtRequest) (*ActiveAtResponse, error)
	Transfer(context.Context, *SessionRequest) (*TransferResponse, error)
	Info(context.Context, *SessionRequest) (*InfoResponse, error)
	Export(context.Context, *SessionRequest) (*ExportResponse, error)
	DropBasis(context.Context, *SessionRequest) (*DropBasisResponse, error)
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
}

// RegisterHBasisServer registers srv on s
func RegisterHBasisServer(s grpc.ServiceRegistrar, srv HBasisServer) {
	s.RegisterService(&HBasisServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler
func unary[Req any, Resp any](name string, call func(HBasisServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(HBasisServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(HBasisServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// HBasisServiceDesc describes the HBasis service
var HBasisServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HBasisServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateBasis", HBasisServer.CreateBasis),
		unary("Refine", HBasisServer.Refine),
		unary("RefineElements", HBasisServer.RefineElements),
		unary("UniformRefine", HBasisServer.UniformRefine),
		unary("ActiveAt", HBasisServer.ActiveAt),
		unary("Transfer", HBasisServer.Transfer),
		unary("Info", HBasisServer.Info),
		unary("Export", HBasisServer.Export),
		unary("DropBasis", HBasisServer.DropBasis),
		unary("ListSessions", HBasisServer.ListSessions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hsplines/hbasis",
}

// Client is a client of the HBasis service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBasis(ctx context.Context, in *CreateBasisRequest, opts ...grpc.CallOption) (*CreateBasisResponse, error) {
	return invoke[CreateBasisResponse](ctx, c, "CreateBasis", in, opts)
}

func (c *Client) Refine(ctx context.Context, in *RefineRequest, opts ...grpc.CallOption) (*RefineResponse, error) {
	return invoke[RefineResponse](ctx, c, "Refine", in, opts)
}

func (c *Client) RefineElements(ctx context.Context, in *RefineElementsRequest, opts ...grpc.CallOption) (*RefineResponse, error) {
	return invoke[RefineResponse](ctx, c, "RefineElements", in, opts)
}

func (c *Client) UniformRefine(ctx context.Context, in *UniformRefineRequest, opts ...grpc.CallOption) (*RefineResponse, error) {
	return invoke[RefineResponse](ctx, c, "UniformRefine", in, opts)
}

func (c *Client) ActiveAt(ctx context.Context, in *ActiveAtRequest, opts ...grpc.CallOption) (*ActiveAtResponse, error) {
	return invoke[ActiveAtResponse](ctx, c, "ActiveAt", in, opts)
}

func (c *Client) Transfer(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c, "Transfer", in, opts)
}

func (c *Client) Info(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*InfoResponse, error) {
	return invoke[InfoResponse](ctx, c, "Info", in, opts)
}

func (c *Client) Export(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*ExportResponse, error) {
	return invoke[ExportResponse](ctx, c, "Export", in, opts)
}

func (c *Client) DropBasis(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*DropBasisResponse, error) {
	return invoke[DropBasisResponse](ctx, c, "DropBasis", in, opts)
}

func (c *Client) ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error) {
	return invoke[ListSessionsResponse](ctx, c, "ListSessions", in, opts)
}
