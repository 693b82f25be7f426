package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct values, so no generated stubs are
// needed on either side.
const ServiceName = "payslip.v1.ExtractionService"

const (
	methodExtractDocument = "/" + ServiceName + "/ExtractDocument"
	methodExtractBatch    = "/" + ServiceName + "/ExtractBatch"
)

// ExtractionServer is the server API for payslip.v1.ExtractionService.
type ExtractionServer interface {
	// ExtractDocument takes {path, employee_id?, config?} and returns the
	// page results of one file with their comparisons.
	ExtractDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// ExtractBatch takes {paths[], config?} and returns a BatchResult.
	ExtractBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExtractDocument", Handler: extractDocumentHandler},
		{MethodName: "ExtractBatch", Handler: extractBatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payslip/v1/extraction.proto",
}

func RegisterExtractionServer(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ExtractionServiceDesc, srv)
}

func extractDocumentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).ExtractDocument(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExtractDocument}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).ExtractDocument(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func extractBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).ExtractBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExtractBatch}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).ExtractBatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ExtractionClient calls payslip.v1.ExtractionService over conn.
type ExtractionClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionClient(cc grpc.ClientConnInterface) *ExtractionClient {
	return &ExtractionClient{cc: cc}
}

func (c *ExtractionClient) ExtractDocument(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodExtractDocument, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExtractionClient) ExtractBatch(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodExtractBatch, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
