package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "quotes.v1.QuoteService"

// Method names of QuoteService. Every method takes and returns a
// google.protobuf.Struct.
const (
	MethodIngestAndQuote = "IngestAndQuote"
	MethodCompleteQuote  = "CompleteQuote"
	MethodGetQuote       = "GetQuote"
	MethodAsk            = "Ask"
	MethodListSources    = "ListSources"
	MethodHealth         = "Health"
	MethodExportQuotes   = "ExportQuotes"
)

// QuoteServiceServer is the server API for QuoteService.
type QuoteServiceServer interface {
	IngestAndQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSources(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportQuotes(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(QuoteServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(QuoteServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(QuoteServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the gRPC path of a QuoteService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// QuoteServiceDesc describes QuoteService for grpc.Server.RegisterService.
var QuoteServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QuoteServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodIngestAndQuote, QuoteServiceServer.IngestAndQuote),
		unary(MethodCompleteQuote, QuoteServiceServer.CompleteQuote),
		unary(MethodGetQuote, QuoteServiceServer.GetQuote),
		unary(MethodAsk, QuoteServiceServer.Ask),
		unary(MethodListSources, QuoteServiceServer.ListSources),
		unary(MethodHealth, QuoteServiceServer.Health),
		unary(MethodExportQuotes, QuoteServiceServer.ExportQuotes),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quotes/v1/quotes.proto",
}

func RegisterQuoteServiceServer(s grpc.ServiceRegistrar, srv QuoteServiceServer) {
	s.RegisterService(&QuoteServiceDesc, srv)
}

// Client calls QuoteService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with in (nil means an empty request).
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
