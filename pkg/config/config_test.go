package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"github.com/meridian-chain/chaincore/internal/testutil"
)

// repoRoot chdirs the test process to the module root, where config/ lives,
// and returns a func that restores the original working directory.
func repoRoot(t *testing.T) func() {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir to module root: %v", err)
	}
	return func() { os.Chdir(wd) }
}

func TestLoadDefault(t *testing.T) {
	defer repoRoot(t)()
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.ID != "chaincore-mainnet" {
		t.Fatalf("unexpected chain id: %s", cfg.Chain.ID)
	}
	if cfg.Store.Driver != "file" {
		t.Fatalf("unexpected store driver: %s", cfg.Store.Driver)
	}
	if cfg.Network.MaxPeers != 50 {
		t.Fatalf("unexpected max peers: %d", cfg.Network.MaxPeers)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	defer repoRoot(t)()
	viper.Reset()

	cfg, err := Load("devnet")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.MaxPeers != 8 {
		t.Fatalf("expected devnet override of max_peers to 8, got %d", cfg.Network.MaxPeers)
	}
	if cfg.Network.EnableNAT {
		t.Fatalf("expected devnet override to disable NAT")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected devnet override of logging level to debug, got %s", cfg.Logging.Level)
	}
	// Fields the override omits must still carry the default's values.
	if cfg.Chain.ID != "chaincore-mainnet" {
		t.Fatalf("expected chain id to still come from default config, got %s", cfg.Chain.ID)
	}
}

func TestLoadSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0o700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	data := []byte("chain:\n  id: sandbox-chain\nnetwork:\n  max_peers: 7\n")
	if err := sb.WriteFile("config/default.yaml", data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir to sandbox: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.ID != "sandbox-chain" {
		t.Fatalf("expected chain id sandbox-chain, got %s", cfg.Chain.ID)
	}
	if cfg.Network.MaxPeers != 7 {
		t.Fatalf("expected max peers 7, got %d", cfg.Network.MaxPeers)
	}
}

func TestLoadFromEnvUsesEnvironmentVariable(t *testing.T) {
	defer repoRoot(t)()
	viper.Reset()

	os.Setenv("CHAINCORE_ENV", "devnet")
	defer os.Unsetenv("CHAINCORE_ENV")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Network.MaxPeers != 8 {
		t.Fatalf("expected CHAINCORE_ENV=devnet to merge devnet.yaml, got max_peers=%d", cfg.Network.MaxPeers)
	}
}
