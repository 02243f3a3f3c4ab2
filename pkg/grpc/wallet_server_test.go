package grpc_test

import (
	"context"
	"net"
	"testing"

	"github.com/example/giftshop/pkg/approval"
	"github.com/example/giftshop/pkg/config"
	giftgrpc "github.com/example/giftshop/pkg/grpc"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository/repotest"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/gorm"
)

type harness struct {
	db     *gorm.DB
	client *giftgrpc.WalletClient
	conn   *grpc.ClientConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := repotest.NewDB(t)
	ledger := wallet.NewLedger(db,
		config.WalletConfig{DefaultCommissionPercent: 4, StoreCode: "ASM"},
		config.AuthConfig{},
		zap.NewNop())
	workflow := approval.NewWorkflow(db, ledger, nil, nil, nil, zap.NewNop())

	lis := bufconn.Listen(1 << 20)
	srv := giftgrpc.NewServer(giftgrpc.NewWalletServer(ledger, workflow, zap.NewNop()), zap.NewNop())
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{db: db, client: giftgrpc.NewWalletClient(conn), conn: conn}
}

func TestWalletService_ApproveAndInspect(t *testing.T) {
	h := newHarness(t)
	repotest.SeedAdmin(t, h.db, "asha", "pw", 100, 4)
	order := repotest.SeedOrder(t, h.db, "ASM-1234", 2000)

	ctx := giftgrpc.AsAdmin(context.Background(), "asha")
	decision, err := h.client.ApproveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "ASM-1234", decision.OrderID)
	assert.Equal(t, string(models.OrderApproved), decision.Status)
	assert.True(t, decision.Deduction.Equal(decimal.NewFromInt(80)))
	assert.True(t, decision.Balance.Equal(decimal.NewFromInt(20)))

	info, err := h.client.GetWallet(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "asha", info.Username)
	assert.True(t, info.Balance.Equal(decimal.NewFromInt(20)))
	assert.True(t, info.CommissionPercent.Equal(decimal.NewFromInt(4)))
	assert.True(t, info.TransactionSum.Equal(decimal.NewFromInt(-80)))
	assert.True(t, info.OpeningBalance.Equal(decimal.NewFromInt(100)))

	txs, err := h.client.ListTransactions(ctx, "asha", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "ASM-1234", txs[0].OrderID)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(-80)))
	assert.Equal(t, string(models.TransactionDeduction), txs[0].Type)
	assert.False(t, txs[0].CreatedAt.IsZero())
}

func TestWalletService_StatusCodes(t *testing.T) {
	h := newHarness(t)
	repotest.SeedAdmin(t, h.db, "asha", "pw", 50, 4)
	order := repotest.SeedOrder(t, h.db, "ASM-2000", 2000)

	_, err := h.client.ApproveOrder(context.Background(), order.ID)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := giftgrpc.AsAdmin(context.Background(), "asha")
	_, err = h.client.ApproveOrder(ctx, order.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "short by 30.00")

	_, err = h.client.ApproveOrder(ctx, 9999)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.ApproveOrder(ctx, 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.DeclineOrder(giftgrpc.AsAdmin(context.Background(), "ghost"), order.ID)
	assert.Equal(t, codes.NotFound, status.Code(err))

	declined, err := h.client.DeclineOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderDeclined), declined.Status)

	_, err = h.client.DeclineOrder(ctx, order.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.client.GetWallet(ctx, "nobody")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestWalletService_RejectsFractionalOrderNumbers(t *testing.T) {
	h := newHarness(t)
	repotest.SeedAdmin(t, h.db, "asha", "pw", 100, 4)
	order := repotest.SeedOrder(t, h.db, "ASM-2000", 100)
	ctx := giftgrpc.AsAdmin(context.Background(), "asha")

	for _, id := range []float64{float64(order.ID) + 0.9, 1e300} {
		in, err := structpb.NewStruct(map[string]interface{}{"id": id})
		require.NoError(t, err)
		for _, method := range []string{"ApproveOrder", "DeclineOrder"} {
			err = h.conn.Invoke(ctx, "/"+giftgrpc.ServiceName+"/"+method, in, new(structpb.Struct))
			assert.Equal(t, codes.InvalidArgument, status.Code(err), "%s %v", method, id)
		}
	}

	var stored models.Order
	require.NoError(t, h.db.First(&stored, order.ID).Error)
	assert.Equal(t, models.OrderPending, stored.Status)
}

func TestWalletService_Health(t *testing.T) {
	h := newHarness(t)
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: giftgrpc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
