package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"sneaker-review-service/internal/service"
)

// CatalogServiceName is the fully qualified gRPC service name.
const CatalogServiceName = "sneakerreviews.v1.Catalog"

// CatalogServer is the read-only catalog exposed over gRPC. Requests and
// responses are google.protobuf.Struct values shaped like the HTTP JSON bodies.
type CatalogServer interface {
	ListSneakers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSneakerDetail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListCategories(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// GRPCHandler implements CatalogServer over the catalog service.
type GRPCHandler struct {
	catalog *service.CatalogService
	logger  *logrus.Logger
}

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(catalog *service.CatalogService, logger *logrus.Logger) *GRPCHandler {
	return &GRPCHandler{catalog: catalog, logger: logger}
}

// --- Helper: Error Mapping ---
func (s *GRPCHandler) mapServiceErrorToGrpcStatus(err error, method string) error {
	if err == nil {
		return nil
	}
	if ve, ok := service.AsValidationError(err); ok {
		return status.Error(codes.InvalidArgument, ve.Error())
	}
	switch {
	case errors.Is(err, service.ErrPageOutOfRange):
		return status.Error(codes.NotFound, "Invalid page.")
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, "Not found.")
	default:
		s.logger.WithError(err).WithField("method", method).Error("gRPC request failed")
		return status.Error(codes.Internal, "Internal server error")
	}
}

// toStruct converts a JSON-serialisable value to a Struct using its json tags.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// positiveID reads a whole-number field. ok is false when the field is absent.
func positiveID(req *structpb.Struct, field string) (id int64, ok bool, err error) {
	v, present := req.GetFields()[field]
	if !present {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || n < 1 || n >= math.MaxInt64 {
			return 0, true, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", field)
		}
		return int64(n), true, nil
	case *structpb.Value_StringValue:
		n, perr := strconv.ParseInt(k.StringValue, 10, 64)
		if perr != nil || n < 1 {
			return 0, true, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", field)
		}
		return n, true, nil
	default:
		return 0, true, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", field)
	}
}

// --- Catalog gRPC Methods Implementation ---

func (s *GRPCHandler) ListSneakers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	in := service.ListSneakersInput{Query: fields["q"].GetStringValue()}

	if v, ok := fields["page"]; ok {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			in.Page = strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
		case *structpb.Value_StringValue:
			in.Page = k.StringValue
		default:
			return nil, status.Error(codes.InvalidArgument, "page must be a number or \"last\"")
		}
	}
	categoryID, ok, err := positiveID(req, "categoria")
	if err != nil {
		return nil, err
	}
	if ok {
		in.CategoryID = &categoryID
	}

	page, err := s.catalog.ListSneakers(ctx, in)
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(err, "ListSneakers")
	}
	out, err := toStruct(page)
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(fmt.Errorf("encode sneaker page: %w", err), "ListSneakers")
	}
	return out, nil
}

func (s *GRPCHandler) GetSneakerDetail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sneakerID, ok, err := positiveID(req, "tenis_id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "tenis_id is required")
	}

	detail, err := s.catalog.GetSneakerDetail(ctx, sneakerID)
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(err, "GetSneakerDetail")
	}
	out, err := toStruct(detail)
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(fmt.Errorf("encode sneaker detail: %w", err), "GetSneakerDetail")
	}
	return out, nil
}

func (s *GRPCHandler) ListCategories(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(err, "ListCategories")
	}
	out, err := toStruct(map[string]interface{}{"categories": categories})
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(fmt.Errorf("encode categories: %w", err), "ListCategories")
	}
	return out, nil
}

// --- Service registration ---

func unaryHandler(method string, call func(CatalogServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CatalogServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + CatalogServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CatalogServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// catalogServiceDesc describes the Catalog service for grpc.Server.
var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListSneakers", CatalogServer.ListSneakers),
		unaryHandler("GetSneakerDetail", CatalogServer.GetSneakerDetail),
		unaryHandler("ListCategories", CatalogServer.ListCategories),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sneakerreviews/v1/catalog.proto",
}

// RegisterCatalogServer registers srv on s.
func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

// CatalogClient calls the Catalog service.
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+CatalogServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) ListSneakers(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListSneakers", req, opts...)
}

func (c *CatalogClient) GetSneakerDetail(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSneakerDetail", req, opts...)
}

func (c *CatalogClient) ListCategories(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListCategories", req, opts...)
}
