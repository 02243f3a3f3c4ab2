package grpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/example/giftshop/pkg/approval"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "giftshop.wallet.v1.WalletService"

	// IdentityHeader carries the acting admin's username.
	IdentityHeader = "x-admin-username"
)

// WalletService is the server side of the wallet RPCs. Requests and
// replies are structpb.Struct; money travels as decimal strings.
type WalletService interface {
	GetWallet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ApproveOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	DeclineOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var walletServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WalletService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetWallet", Handler: unary("GetWallet", WalletService.GetWallet)},
		{MethodName: "ListTransactions", Handler: unary("ListTransactions", WalletService.ListTransactions)},
		{MethodName: "ApproveOrder", Handler: unary("ApproveOrder", WalletService.ApproveOrder)},
		{MethodName: "DeclineOrder", Handler: unary("DeclineOrder", WalletService.DeclineOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "giftshop/wallet/v1/wallet.proto",
}

func unary(method string, call func(WalletService, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(WalletService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(WalletService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func RegisterWalletService(s grpc.ServiceRegistrar, srv WalletService) {
	s.RegisterService(&walletServiceDesc, srv)
}

type WalletServer struct {
	ledger  *wallet.Ledger
	decider approval.Decider
	logger  *zap.Logger
}

func NewWalletServer(ledger *wallet.Ledger, decider approval.Decider, logger *zap.Logger) *WalletServer {
	return &WalletServer{
		ledger:  ledger,
		decider: decider,
		logger:  logger,
	}
}

// NewServer builds a grpc.Server exposing the wallet service, the standard
// health service and reflection.
func NewServer(ws *WalletServer, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogger(logger)))
	RegisterWalletService(srv, ws)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)
	return srv
}

// Serve listens on addr until srv stops.
func Serve(srv *grpc.Server, addr string, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	logger.Info("Ledger service started", zap.String("address", addr))
	return srv.Serve(lis)
}

// UnaryLogger logs each call with its duration and status code.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("gRPC request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("gRPC request", fields...)
		}
		return resp, err
	}
}

func (s *WalletServer) GetWallet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	username := stringField(in, "username")
	if username == "" {
		username = identity(ctx).Username
	}
	if username == "" {
		return nil, status.Error(codes.InvalidArgument, "username is required")
	}

	account, err := s.ledger.Account(ctx, session.Identity{Username: username})
	if err != nil {
		return nil, toStatus(err)
	}
	summary, err := s.ledger.Reconcile(ctx, account.Username)
	if err != nil {
		return nil, toStatus(err)
	}

	return newStruct(map[string]interface{}{
		"username":           account.Username,
		"balance":            summary.Balance.StringFixed(2),
		"commission_percent": s.ledger.CommissionPercent(account).String(),
		"transaction_sum":    summary.TransactionSum.StringFixed(2),
		"opening_balance":    summary.OpeningBalance.StringFixed(2),
	})
}

func (s *WalletServer) ListTransactions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	username := stringField(in, "username")
	if username == "" {
		username = identity(ctx).Username
	}
	if username == "" {
		return nil, status.Error(codes.InvalidArgument, "username is required")
	}

	txs, err := s.ledger.History(ctx, username, int(numberField(in, "limit")))
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]interface{}, 0, len(txs))
	for _, tx := range txs {
		list = append(list, transactionFields(tx))
	}
	return newStruct(map[string]interface{}{
		"username":     username,
		"transactions": list,
	})
}

func (s *WalletServer) ApproveOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, orderID, err := decisionArgs(ctx, in)
	if err != nil {
		return nil, err
	}

	result, err := s.decider.Approve(ctx, id, orderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{
		"id":                 float64(result.Order.ID),
		"order_id":           result.Order.OrderID,
		"status":             string(result.Order.Status),
		"deduction":          result.Deduction.StringFixed(2),
		"commission_percent": result.Percent.String(),
		"balance":            result.Balance.StringFixed(2),
	})
}

func (s *WalletServer) DeclineOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, orderID, err := decisionArgs(ctx, in)
	if err != nil {
		return nil, err
	}

	order, err := s.decider.Decline(ctx, id, orderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{
		"id":       float64(order.ID),
		"order_id": order.OrderID,
		"status":   string(order.Status),
	})
}

// maxOrderNumber is the largest id a structpb number carries exactly.
const maxOrderNumber = 1 << 53

func decisionArgs(ctx context.Context, in *structpb.Struct) (session.Identity, uint, error) {
	id := identity(ctx)
	if id.IsZero() {
		return id, 0, status.Error(codes.Unauthenticated, "missing "+IdentityHeader)
	}
	orderID := numberField(in, "id")
	if orderID <= 0 || orderID != math.Trunc(orderID) || orderID > maxOrderNumber {
		return id, 0, status.Error(codes.InvalidArgument, "id must be a positive whole order number")
	}
	return id, uint(orderID), nil
}

func identity(ctx context.Context) session.Identity {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return session.Identity{}
	}
	values := md.Get(IdentityHeader)
	if len(values) == 0 {
		return session.Identity{}
	}
	return session.Identity{Username: values[0]}
}

func transactionFields(tx models.WalletTransaction) map[string]interface{} {
	fields := map[string]interface{}{
		"id":          float64(tx.ID),
		"amount":      tx.Amount.StringFixed(2),
		"type":        string(tx.Type),
		"description": tx.Description,
		"created_at":  tx.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tx.OrderID != nil {
		fields["order_id"] = *tx.OrderID
	}
	return fields
}

func toStatus(err error) error {
	var short *wallet.InsufficientBalanceError
	switch {
	case errors.As(err, &short):
		return status.Error(codes.FailedPrecondition, short.Error())
	case errors.Is(err, approval.ErrNotPending), errors.Is(err, wallet.ErrAlreadyCharged):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, approval.ErrOrderNotFound), errors.Is(err, wallet.ErrAccountNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, wallet.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func newStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode reply: %v", err)
	}
	return out, nil
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func numberField(in *structpb.Struct, key string) float64 {
	return in.GetFields()[key].GetNumberValue()
}
