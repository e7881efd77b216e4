package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleGenesisYAML = `
genesis_hash: "00000000000000000000000000000000000000000000000000000000000000aa"
genesis_height: 100

core:
  checkpoint_verifying_key: "aabb"
  sequencer_pub_key: "ccdd"

bridge:
  operators:
    - operator_id: "00000000000000000000000000000000000000000000000000000000000000bb"
      amount: 1000

checkpoint:
  sequencer_pub_key: "ccdd"

upgrade:
  operator_keys:
    - "ee"
    - "ff"
  threshold: 2
`

func writeTempGenesis(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp genesis: %v", err)
	}
	return path
}

func TestLoadGenesisFileParsesAndConverts(t *testing.T) {
	path := writeTempGenesis(t, sampleGenesisYAML)

	gf, err := LoadGenesisFile(path)
	if err != nil {
		t.Fatalf("load genesis file: %v", err)
	}

	genesis, err := gf.ToAnchorGenesis()
	if err != nil {
		t.Fatalf("to anchor genesis: %v", err)
	}

	if genesis.GenesisHeight != 100 {
		t.Fatalf("expected genesis height 100, got %d", genesis.GenesisHeight)
	}
	if genesis.GenesisHash[31] != 0xaa {
		t.Fatalf("expected genesis hash to end in 0xaa, got %x", genesis.GenesisHash)
	}
	if len(genesis.Bridge.Operators) != 1 || genesis.Bridge.Operators[0].Amount != 1000 {
		t.Fatalf("unexpected bridge operators: %+v", genesis.Bridge.Operators)
	}
	if len(genesis.Upgrade.OperatorKeys) != 2 || genesis.Upgrade.Threshold != 2 {
		t.Fatalf("unexpected upgrade genesis: %+v", genesis.Upgrade)
	}
}

func TestLoadGenesisFileRejectsBadHex(t *testing.T) {
	path := writeTempGenesis(t, strings.Replace(sampleGenesisYAML, `"aabb"`, `"zz"`, 1))

	gf, err := LoadGenesisFile(path)
	if err != nil {
		t.Fatalf("load genesis file: %v", err)
	}

	if _, err := gf.ToAnchorGenesis(); err == nil {
		t.Fatalf("expected an error for invalid hex in checkpoint_verifying_key")
	}
}

func TestLoadGenesisFileRejectsWrongHashLength(t *testing.T) {
	path := writeTempGenesis(t, strings.Replace(sampleGenesisYAML, `"00000000000000000000000000000000000000000000000000000000000000aa"`, `"aa"`, 1))

	gf, err := LoadGenesisFile(path)
	if err != nil {
		t.Fatalf("load genesis file: %v", err)
	}

	if _, err := gf.ToAnchorGenesis(); err == nil {
		t.Fatalf("expected an error for a genesis hash that is not 32 bytes")
	}
}
