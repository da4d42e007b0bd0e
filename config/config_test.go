package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8645", cfg.ListenAddress)
	require.Equal(t, "dev", cfg.Environment)
	require.False(t, cfg.OperatorAddress().IsZero())
	require.False(t, cfg.AuthorityAddress().IsZero())
}

func TestLoadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `Environment = "prod"
ListenAddress = ":9000"
DataDir = "/var/lib/stayd"
RateLimit = 10
RateBurst = 20
Operator = "0x00000000000000000000000000000000000000a1"
Authority = "0x00000000000000000000000000000000000000a2"
Admin = "0x00000000000000000000000000000000000000a3"
Treasury = "0x00000000000000000000000000000000000000a4"
TreasuryBps = 250
PropertyBps = 250
FirstOwnerBps = 100
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, uint64(250), cfg.TreasuryBps)
	require.Equal(t, "0x00000000000000000000000000000000000000a1", cfg.OperatorAddress().Hex())
}

func TestValidate(t *testing.T) {
	base := Config{
		Environment:   "dev",
		ListenAddress: ":8645",
		DataDir:       "./data",
		RateLimit:     10,
		RateBurst:     20,
		Operator:      "0x00000000000000000000000000000000000000a1",
		Authority:     "0x00000000000000000000000000000000000000a2",
		Admin:         "0x00000000000000000000000000000000000000a3",
		Treasury:      "0x00000000000000000000000000000000000000a4",
		TreasuryBps:   200,
		PropertyBps:   200,
		FirstOwnerBps: 200,
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.ListenAddress = ""
	require.Error(t, bad.Validate())

	bad = base
	bad.Operator = "not-an-address"
	require.Error(t, bad.Validate())

	bad = base
	bad.Treasury = "0x0000000000000000000000000000000000000000"
	require.Error(t, bad.Validate())

	bad = base
	bad.TreasuryBps = 9000
	bad.PropertyBps = 2000
	require.Error(t, bad.Validate())

	// A wrapped sum must not slip under the combined limit.
	bad = base
	bad.TreasuryBps = 1 << 63
	bad.PropertyBps = 1 << 63
	bad.FirstOwnerBps = 500
	require.Error(t, bad.Validate())

	bad = base
	bad.RateLimit = 0
	require.Error(t, bad.Validate())
}
