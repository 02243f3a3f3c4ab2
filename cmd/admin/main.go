// Command admin is the operator CLI for admin accounts and wallets.
//
// Account commands talk to the database directly; order and wallet
// inspection commands go through the ledger service over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/example/giftshop/pkg/bootstrap"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/discovery"
	giftgrpc "github.com/example/giftshop/pkg/grpc"
	"github.com/example/giftshop/pkg/logger"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const usage = `usage: admin [-config path] <command> [flags]

commands:
  add-admin       create an admin account
  list-admins     list admin accounts with balances
  set-password    replace an admin's password
  refill          credit points to an admin wallet
  set-commission  set or clear an admin's commission percent
  reconcile       compare an admin's balance with its transactions
  wallet          show a wallet via the ledger service
  history         list wallet transactions via the ledger service
  approve         approve an order via the ledger service
  decline         decline an order via the ledger service
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("admin", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	configPath := global.String("config", "", "path to the config file")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if global.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "add-admin", "list-admins", "set-password", "refill", "set-commission", "reconcile":
		return runLocal(ctx, cfg, log, cmd, rest, out)
	case "wallet", "history", "approve", "decline":
		return runRemote(ctx, cfg, log, cmd, rest, out)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func runLocal(ctx context.Context, cfg *config.Config, log *zap.Logger, cmd string, args []string, out io.Writer) error {
	// Account commands need the database and the audit log only.
	cfg.Redis.Enabled = false
	cfg.Kafka.Enabled = false

	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close(ctx)
	ledger := wallet.NewLedger(infra.DB, cfg.Wallet, cfg.Auth, log.Named("wallet"))

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("username", "", "admin username")

	switch cmd {
	case "add-admin":
		password := fs.String("password", "", "initial password")
		balance := fs.String("balance", "0", "opening wallet balance")
		commission := fs.String("commission", "", "commission percent; empty uses the default")
		if err := parse(fs, args, username); err != nil {
			return err
		}
		if err := addAdmin(ctx, ledger, *username, *password, *balance, *commission, out); err != nil {
			return err
		}
		audit(ctx, infra.Auditor, log, "admin.created", *username, bson.M{"balance": *balance, "commission": *commission})
		return nil

	case "list-admins":
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		accounts, err := repository.NewAccountRepository(infra.DB).List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tBALANCE\tCOMMISSION")
		for i := range accounts {
			a := &accounts[i]
			commission := ledger.CommissionPercent(a).String() + "%"
			if !a.CommissionPercent.Valid {
				commission += " (default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Username, a.WalletBalance.StringFixed(2), commission)
		}
		return w.Flush()

	case "set-password":
		password := fs.String("password", "", "new password")
		if err := parse(fs, args, username); err != nil {
			return err
		}
		if *password == "" {
			return fmt.Errorf("%w: -password is required", errUsage)
		}
		hash, err := session.HashPassword(*password)
		if err != nil {
			return err
		}
		if err := repository.NewAccountRepository(infra.DB).SetPasswordHash(ctx, *username, hash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return wallet.ErrAccountNotFound
			}
			return err
		}
		audit(ctx, infra.Auditor, log, "admin.password_set", *username, nil)
		fmt.Fprintf(out, "password for %s updated\n", *username)
		return nil

	case "refill":
		amount := fs.String("amount", "", "points to credit")
		description := fs.String("description", "", "ledger description")
		if err := parse(fs, args, username); err != nil {
			return err
		}
		value, err := decimal.NewFromString(*amount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", *amount, err)
		}
		entry, err := ledger.Refill(ctx, *username, value, *description)
		if err != nil {
			return err
		}
		balance, err := ledger.Balance(ctx, *username)
		if err != nil {
			return err
		}
		audit(ctx, infra.Auditor, log, "wallet.refilled", *username, bson.M{"amount": value.String(), "balance": balance.String()})
		fmt.Fprintf(out, "refilled %s by %s (transaction %d), balance %s\n",
			*username, entry.Amount.StringFixed(2), entry.ID, balance.StringFixed(2))
		return nil

	case "set-commission":
		percent := fs.String("percent", "", "commission percent")
		reset := fs.Bool("clear", false, "reset to the configured default")
		if err := parse(fs, args, username); err != nil {
			return err
		}
		var value *decimal.Decimal
		if !*reset {
			d, err := decimal.NewFromString(*percent)
			if err != nil {
				return fmt.Errorf("invalid percent %q: %w", *percent, err)
			}
			value = &d
		}
		if err := ledger.SetCommission(ctx, *username, value); err != nil {
			return err
		}
		data := bson.M{"percent": nil}
		if value != nil {
			data["percent"] = value.String()
		}
		audit(ctx, infra.Auditor, log, "wallet.commission_set", *username, data)
		if value == nil {
			fmt.Fprintf(out, "commission for %s reset to default\n", *username)
		} else {
			fmt.Fprintf(out, "commission for %s set to %s%%\n", *username, value.String())
		}
		return nil

	case "reconcile":
		if err := parse(fs, args, username); err != nil {
			return err
		}
		summary, err := ledger.Reconcile(ctx, *username)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "username:         %s\nbalance:          %s\ntransaction sum:  %s\nopening balance:  %s\n",
			summary.Username,
			summary.Balance.StringFixed(2),
			summary.TransactionSum.StringFixed(2),
			summary.OpeningBalance.StringFixed(2))
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func addAdmin(ctx context.Context, ledger *wallet.Ledger, username, password, balance, commission string, out io.Writer) error {
	hash, err := session.HashPassword(password)
	if err != nil {
		return err
	}
	opening, err := decimal.NewFromString(balance)
	if err != nil || opening.IsNegative() {
		return fmt.Errorf("invalid balance %q", balance)
	}
	account := &models.AdminAccount{
		Username:     username,
		PasswordHash: hash,
	}
	if commission != "" {
		percent, err := decimal.NewFromString(commission)
		if err != nil || percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("invalid commission %q", commission)
		}
		account.CommissionPercent = decimal.NewNullDecimal(percent)
	}
	if _, err := ledger.CreateAccount(ctx, account, opening); err != nil {
		return err
	}
	fmt.Fprintf(out, "created admin %s with balance %s\n", username, account.WalletBalance.StringFixed(2))
	return nil
}

func audit(ctx context.Context, auditor repository.Auditor, log *zap.Logger, action, username string, data bson.M) {
	if err := auditor.CreateAuditLog(ctx, &repository.AuditLog{
		Service:  "admin-cli",
		Action:   action,
		EntityID: "admin:" + username,
		Actor:    "cli",
		Data:     data,
	}); err != nil {
		log.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func runRemote(ctx context.Context, cfg *config.Config, log *zap.Logger, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	as := fs.String("as", "", "acting admin username")
	id := fs.Uint("id", 0, "order number")
	limit := fs.Int("limit", 20, "maximum transactions to list")
	if err := parse(fs, args, as); err != nil {
		return err
	}

	var sd *discovery.ServiceDiscovery
	if cfg.Etcd.Enabled {
		var err error
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, using grpc.target", zap.Error(err))
		} else {
			defer sd.Close()
		}
	}

	clients := giftgrpc.NewClientManager(cfg, log, sd)
	if err := clients.Connect(ctx); err != nil {
		return err
	}
	defer clients.Close()

	ctx, cancel := context.WithTimeout(giftgrpc.AsAdmin(ctx, *as), 30*time.Second)
	defer cancel()
	client := clients.Wallet()

	switch cmd {
	case "wallet":
		info, err := client.GetWallet(ctx, *as)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "username:    %s\nbalance:     %s\ncommission:  %s%%\n",
			info.Username, info.Balance.StringFixed(2), info.CommissionPercent.String())
		return nil

	case "history":
		txs, err := client.ListTransactions(ctx, *as, *limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWHEN\tTYPE\tAMOUNT\tORDER\tDESCRIPTION")
		for _, tx := range txs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				tx.ID, tx.CreatedAt.Local().Format(time.DateTime), tx.Type, tx.Amount.StringFixed(2), tx.OrderID, tx.Description)
		}
		return tw.Flush()

	case "approve", "decline":
		if *id == 0 {
			return fmt.Errorf("%w: -id is required", errUsage)
		}
		var (
			decision *giftgrpc.DecisionInfo
			err      error
		)
		if cmd == "approve" {
			decision, err = client.ApproveOrder(ctx, *id)
		} else {
			decision, err = client.DeclineOrder(ctx, *id)
		}
		if err != nil {
			return err
		}
		if cmd == "approve" {
			fmt.Fprintf(out, "order %s approved, deducted %s, balance %s\n",
				decision.OrderID, decision.Deduction.StringFixed(2), decision.Balance.StringFixed(2))
		} else {
			fmt.Fprintf(out, "order %s declined\n", decision.OrderID)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// parse reads args and requires the named flag to be non-empty.
func parse(fs *flag.FlagSet, args []string, required *string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *required == "" {
		name := "-username"
		if fs.Lookup("as") != nil {
			name = "-as"
		}
		return fmt.Errorf("%w: %s is required", errUsage, name)
	}
	return nil
}
