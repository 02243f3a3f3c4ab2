package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupCLI(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "giftshop.db")
	t.Setenv("GIFTSHOP_DATABASE_DRIVER", "sqlite")
	t.Setenv("GIFTSHOP_DATABASE_DSN", dsn)
	t.Setenv("GIFTSHOP_LOG_LEVEL", "error")
	return dsn
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestCLI_AccountLifecycle(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "add-admin", "-username", "asha", "-password", "secret", "-balance", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "created admin asha with balance 100.00")

	_, err = runCLI(t, "add-admin", "-username", "asha", "-password", "secret")
	assert.Error(t, err, "usernames are unique")

	out, err = runCLI(t, "refill", "-username", "asha", "-amount", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "balance 150.00")

	out, err = runCLI(t, "set-commission", "-username", "asha", "-percent", "2.5")
	require.NoError(t, err)
	assert.Contains(t, out, "set to 2.5%")

	out, err = runCLI(t, "set-commission", "-username", "asha", "-clear")
	require.NoError(t, err)
	assert.Contains(t, out, "reset to default")

	out, err = runCLI(t, "reconcile", "-username", "asha")
	require.NoError(t, err)
	assert.Contains(t, out, "balance:          150.00")
	assert.Contains(t, out, "transaction sum:  150.00")
	assert.Contains(t, out, "opening balance:  0.00")
}

func TestCLI_OpeningBalanceIsOnTheLedger(t *testing.T) {
	dsn := setupCLI(t)

	_, err := runCLI(t, "add-admin", "-username", "asha", "-password", "secret", "-balance", "100")
	require.NoError(t, err)

	db, err := repository.OpenDB(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	ledger := wallet.NewLedger(db, config.WalletConfig{DefaultCommissionPercent: 4, StoreCode: "ASM"}, config.AuthConfig{}, zap.NewNop())

	summary, err := ledger.Reconcile(context.Background(), "asha")
	require.NoError(t, err)
	assert.True(t, summary.OpeningBalance.IsZero())
	history, err := ledger.History(context.Background(), "asha", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Opening balance", history[0].Description)
}

func TestCLI_ListAdminsAndSetPassword(t *testing.T) {
	dsn := setupCLI(t)

	_, err := runCLI(t, "add-admin", "-username", "asha", "-password", "secret", "-balance", "40")
	require.NoError(t, err)
	_, err = runCLI(t, "add-admin", "-username", "ravi", "-password", "secret", "-commission", "2")
	require.NoError(t, err)

	out, err := runCLI(t, "list-admins")
	require.NoError(t, err)
	assert.Contains(t, out, "USERNAME")
	assert.Regexp(t, `asha\s+40\.00\s+4% \(default\)`, out)
	assert.Regexp(t, `ravi\s+0\.00\s+2%`, out)

	out, err = runCLI(t, "set-password", "-username", "asha", "-password", "n3w-pass")
	require.NoError(t, err)
	assert.Contains(t, out, "password for asha updated")

	_, err = runCLI(t, "set-password", "-username", "asha")
	assert.ErrorIs(t, err, errUsage)
	_, err = runCLI(t, "set-password", "-username", "ghost", "-password", "x")
	assert.ErrorIs(t, err, wallet.ErrAccountNotFound)

	db, err := repository.OpenDB(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	sessions, err := session.NewManager(config.SessionConfig{Key: "cli-test-session-key", CookieName: "admin_auth", MaxAge: 60},
		repository.NewAccountRepository(db), zap.NewNop())
	require.NoError(t, err)
	_, err = sessions.Authenticate(context.Background(), "asha", "n3w-pass")
	assert.NoError(t, err)
	_, err = sessions.Authenticate(context.Background(), "asha", "secret")
	assert.Error(t, err)
}

func TestCLI_Errors(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "refill", "-amount", "10")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "refill", "-username", "ghost", "-amount", "10")
	assert.Error(t, err)

	_, err = runCLI(t, "refill", "-username", "ghost", "-amount", "-10")
	assert.Error(t, err)

	_, err = runCLI(t, "set-commission", "-username", "ghost", "-percent", "150")
	assert.Error(t, err)
}
