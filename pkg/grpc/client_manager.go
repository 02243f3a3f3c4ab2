package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/discovery"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// ClientManager owns the connection to the ledger service.
type ClientManager struct {
	config    *config.Config
	discovery *discovery.ServiceDiscovery
	logger    *zap.Logger

	walletClient *WalletClient
	ledgerConn   *grpc.ClientConn
}

// NewClientManager creates a client manager. disc may be nil, in which case
// the configured grpc.target is dialed.
func NewClientManager(cfg *config.Config, logger *zap.Logger, disc *discovery.ServiceDiscovery) *ClientManager {
	return &ClientManager{
		config:    cfg,
		discovery: disc,
		logger:    logger,
	}
}

func (m *ClientManager) Connect(ctx context.Context) error {
	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	target := m.discovery.Resolve(lookupCtx, discovery.LedgerService, m.config.GRPC.Target)

	m.logger.Info("Connecting to ledger service", zap.String("target", target))

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to ledger service: %w", err)
	}

	m.ledgerConn = conn
	m.walletClient = NewWalletClient(conn)
	return nil
}

func (m *ClientManager) Wallet() *WalletClient {
	return m.walletClient
}

func (m *ClientManager) Close() error {
	if m.ledgerConn == nil {
		return nil
	}
	if err := m.ledgerConn.Close(); err != nil {
		return fmt.Errorf("ledger connection close error: %w", err)
	}
	return nil
}

// WalletClient is the typed client for WalletService.
type WalletClient struct {
	cc grpc.ClientConnInterface
}

func NewWalletClient(cc grpc.ClientConnInterface) *WalletClient {
	return &WalletClient{cc: cc}
}

type WalletInfo struct {
	Username          string
	Balance           decimal.Decimal
	CommissionPercent decimal.Decimal
	TransactionSum    decimal.Decimal
	OpeningBalance    decimal.Decimal
}

type TransactionInfo struct {
	ID          uint
	OrderID     string
	Amount      decimal.Decimal
	Type        string
	Description string
	CreatedAt   time.Time
}

type DecisionInfo struct {
	ID                uint
	OrderID           string
	Status            string
	Deduction         decimal.Decimal
	CommissionPercent decimal.Decimal
	Balance           decimal.Decimal
}

// AsAdmin attaches the acting admin's username to outgoing calls.
func AsAdmin(ctx context.Context, username string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, IdentityHeader, username)
}

func (c *WalletClient) GetWallet(ctx context.Context, username string) (*WalletInfo, error) {
	out, err := c.invoke(ctx, "GetWallet", map[string]interface{}{"username": username})
	if err != nil {
		return nil, err
	}
	return &WalletInfo{
		Username:          stringField(out, "username"),
		Balance:           decimalField(out, "balance"),
		CommissionPercent: decimalField(out, "commission_percent"),
		TransactionSum:    decimalField(out, "transaction_sum"),
		OpeningBalance:    decimalField(out, "opening_balance"),
	}, nil
}

func (c *WalletClient) ListTransactions(ctx context.Context, username string, limit int) ([]TransactionInfo, error) {
	out, err := c.invoke(ctx, "ListTransactions", map[string]interface{}{
		"username": username,
		"limit":    limit,
	})
	if err != nil {
		return nil, err
	}

	values := out.GetFields()["transactions"].GetListValue().GetValues()
	txs := make([]TransactionInfo, 0, len(values))
	for _, v := range values {
		fields := v.GetStructValue()
		created, _ := time.Parse(time.RFC3339, stringField(fields, "created_at"))
		txs = append(txs, TransactionInfo{
			ID:          uint(numberField(fields, "id")),
			OrderID:     stringField(fields, "order_id"),
			Amount:      decimalField(fields, "amount"),
			Type:        stringField(fields, "type"),
			Description: stringField(fields, "description"),
			CreatedAt:   created,
		})
	}
	return txs, nil
}

func (c *WalletClient) ApproveOrder(ctx context.Context, id uint) (*DecisionInfo, error) {
	return c.decide(ctx, "ApproveOrder", id)
}

func (c *WalletClient) DeclineOrder(ctx context.Context, id uint) (*DecisionInfo, error) {
	return c.decide(ctx, "DeclineOrder", id)
}

func (c *WalletClient) decide(ctx context.Context, method string, id uint) (*DecisionInfo, error) {
	out, err := c.invoke(ctx, method, map[string]interface{}{"id": float64(id)})
	if err != nil {
		return nil, err
	}
	return &DecisionInfo{
		ID:                uint(numberField(out, "id")),
		OrderID:           stringField(out, "order_id"),
		Status:            stringField(out, "status"),
		Deduction:         decimalField(out, "deduction"),
		CommissionPercent: decimalField(out, "commission_percent"),
		Balance:           decimalField(out, "balance"),
	}, nil
}

func (c *WalletClient) invoke(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decimalField(in *structpb.Struct, key string) decimal.Decimal {
	d, err := decimal.NewFromString(stringField(in, key))
	if err != nil {
		return decimal.Zero
	}
	return d
}
