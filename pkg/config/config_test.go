package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  name: ledger\n"))
	require.NoError(t, err)

	assert.Equal(t, "ledger", cfg.Server.Name)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "giftshop.db", cfg.Database.DSNString())
	assert.Equal(t, 4.0, cfg.Wallet.DefaultCommissionPercent)
	assert.Equal(t, "ASM", cfg.Wallet.StoreCode)
	assert.Equal(t, "+91", cfg.Wallet.CountryCode)
	assert.Equal(t, uint(1200), cfg.Imaging.MaxWidth)
	assert.Equal(t, 80, cfg.Imaging.JPEGQuality)
	assert.Equal(t, 40_000_000, cfg.Imaging.MaxPixels)
	assert.EqualValues(t, 16<<20, cfg.Gateway.MaxBodyBytes)
	assert.Equal(t, "admin_auth", cfg.Session.CookieName)
	assert.False(t, cfg.Auth.LegacyFirstAccountFallback)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
  host: db
  port: 3306
  username: shop
  password: secret
  database: giftshop
wallet:
  default_commission_percent: 5
  store_code: MOM
auth:
  legacy_first_account_fallback: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Wallet.DefaultCommissionPercent)
	assert.Equal(t, "MOM", cfg.Wallet.StoreCode)
	assert.True(t, cfg.Auth.LegacyFirstAccountFallback)
	assert.Equal(t, "shop:secret@tcp(db:3306)/giftshop?charset=utf8mb4&parseTime=True&loc=Local", cfg.Database.DSNString())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GIFTSHOP_WALLET_STORE_CODE", "ENV")
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "ENV", cfg.Wallet.StoreCode)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: oracle\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", Host: "pg", Port: 5432, Username: "u", Password: "p", Database: "d"}
	assert.Equal(t, "host=pg port=5432 user=u password=p dbname=d sslmode=disable", c.DSNString())
}

func TestLoadShippedConfigUsesDiscreteFields(t *testing.T) {
	cfg, err := Load("../../config/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Empty(t, cfg.Database.DSN)
	assert.Contains(t, cfg.Database.DSNString(), "@tcp(")
}

func TestLoadDSNFromEnv(t *testing.T) {
	t.Setenv("GIFTSHOP_DATABASE_DSN", "file:env.db")
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "file:env.db", cfg.Database.DSNString())
}
