package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tradeforge/escrow-release-service/internal/application"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// EscrowInternalService is the service-to-service query surface. Sibling
// services (job lifecycle, payouts dashboard) read escrow state through it
// instead of the public HTTP API.
type EscrowInternalService interface {
	GetTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluateAutoRelease(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type EscrowInternalServer struct {
	service *application.Service
}

func NewEscrowInternalServer(service *application.Service) *EscrowInternalServer {
	return &EscrowInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc EscrowInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "tradeforge.escrow.v1.EscrowInternalService",
		HandlerType: (*EscrowInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetTransaction",
				Handler:    getTransactionHandler(svc),
			},
			{
				MethodName: "EvaluateAutoRelease",
				Handler:    evaluateAutoReleaseHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "tradeforge/contracts/proto/escrow/v1/escrow_internal.proto",
	}, svc)
}

func (s *EscrowInternalServer) GetTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	escrowID, err := escrowIDFromRequest(req)
	if err != nil {
		return nil, err
	}

	esc, err := s.service.GetTransaction(ctx, escrowID)
	if err != nil {
		return nil, mapServiceError(err)
	}

	fields := map[string]any{
		"escrow_id":            esc.EscrowID,
		"job_id":               esc.JobID,
		"status":               string(esc.Status),
		"amount":               esc.Amount,
		"currency":             esc.Currency,
		"auto_release_enabled": esc.AutoReleaseEnabled,
		"risk_hold_extended":   esc.RiskHoldExtended,
		"transfer_id":          esc.TransferID,
	}
	if esc.AutoReleaseAt != nil {
		fields["auto_release_at"] = esc.AutoReleaseAt.Unix()
	}
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *EscrowInternalServer) EvaluateAutoRelease(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	escrowID, err := escrowIDFromRequest(req)
	if err != nil {
		return nil, err
	}

	eval, err := s.service.EvaluateAutoRelease(ctx, escrowID)
	if err != nil {
		return nil, mapServiceError(err)
	}

	resp, err := structpb.NewStruct(map[string]any{
		"escrow_id": eval.EscrowID,
		"approved":  eval.Approved,
		"reason":    eval.Reason,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func escrowIDFromRequest(req *structpb.Struct) (string, error) {
	v := req.GetFields()["escrow_id"]
	if v == nil || v.GetStringValue() == "" {
		return "", status.Error(codes.InvalidArgument, "missing escrow_id")
	}
	return v.GetStringValue(), nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "transaction not found")
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Errorf(codes.Internal, "escrow query failed: %v", err)
	}
}

func getTransactionHandler(svc EscrowInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := decode(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetTransaction(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     svc,
			FullMethod: "/tradeforge.escrow.v1.EscrowInternalService/GetTransaction",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return svc.GetTransaction(ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func evaluateAutoReleaseHandler(svc EscrowInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := decode(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.EvaluateAutoRelease(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     svc,
			FullMethod: "/tradeforge.escrow.v1.EscrowInternalService/EvaluateAutoRelease",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return svc.EvaluateAutoRelease(ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
