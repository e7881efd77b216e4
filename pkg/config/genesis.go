package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strataorch/orchestration/pkg/anchorstate"
	"github.com/strataorch/orchestration/pkg/subprotocol/bridge"
	"github.com/strataorch/orchestration/pkg/subprotocol/core"
	"github.com/strataorch/orchestration/pkg/subprotocol/checkpoint"
	"github.com/strataorch/orchestration/pkg/subprotocol/upgrade"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// GenesisFile is the YAML-facing mirror of anchorstate.GenesisConfig. Binary
// fields (hashes, pubkeys) are hex strings on disk, the way the teacher's own
// YAML configs (pkg/config/anchor_config.go) keep addresses and hex-ish
// identifiers as plain strings rather than inventing a binary YAML encoding.
type GenesisFile struct {
	GenesisHash   string `yaml:"genesis_hash"`
	GenesisHeight uint64 `yaml:"genesis_height"`

	Core       GenesisCoreSection       `yaml:"core"`
	Bridge     GenesisBridgeSection     `yaml:"bridge"`
	Checkpoint GenesisCheckpointSection `yaml:"checkpoint"`
	Upgrade    GenesisUpgradeSection    `yaml:"upgrade"`
}

// GenesisCoreSection mirrors core.GenesisConfig.
type GenesisCoreSection struct {
	CheckpointVerifyingKey string `yaml:"checkpoint_verifying_key"`
	SequencerPubKey        string `yaml:"sequencer_pub_key"`
}

// GenesisBridgeSection mirrors bridge.GenesisConfig.
type GenesisBridgeSection struct {
	Operators []GenesisOperatorStake `yaml:"operators"`
}

// GenesisOperatorStake mirrors bridge.OperatorStake.
type GenesisOperatorStake struct {
	OperatorId string `yaml:"operator_id"`
	Amount     uint64 `yaml:"amount"`
}

// GenesisCheckpointSection mirrors checkpoint.GenesisConfig.
type GenesisCheckpointSection struct {
	SequencerPubKey string `yaml:"sequencer_pub_key"`
}

// GenesisUpgradeSection mirrors upgrade.GenesisConfig.
type GenesisUpgradeSection struct {
	OperatorKeys []string `yaml:"operator_keys"`
	Threshold    int      `yaml:"threshold"`
}

// LoadGenesisFile reads and parses a genesis YAML file from path, the way
// pkg/config/anchor_config.go's LoadAnchorConfig reads its own YAML config.
func LoadGenesisFile(path string) (*GenesisFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis file: %w", err)
	}
	var gf GenesisFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("config: parse genesis file: %w", err)
	}
	return &gf, nil
}

// ToAnchorGenesis converts gf into the anchorstate.GenesisConfig the ASM
// state machine is actually constructed from, decoding every hex field and
// validating fixed-width ones.
func (gf *GenesisFile) ToAnchorGenesis() (anchorstate.GenesisConfig, error) {
	genesisHash, err := decodeHash("genesis_hash", gf.GenesisHash)
	if err != nil {
		return anchorstate.GenesisConfig{}, err
	}

	checkpointVK, err := decodeHex("core.checkpoint_verifying_key", gf.Core.CheckpointVerifyingKey)
	if err != nil {
		return anchorstate.GenesisConfig{}, err
	}
	coreSequencerKey, err := decodeHex("core.sequencer_pub_key", gf.Core.SequencerPubKey)
	if err != nil {
		return anchorstate.GenesisConfig{}, err
	}
	checkpointSequencerKey, err := decodeHex("checkpoint.sequencer_pub_key", gf.Checkpoint.SequencerPubKey)
	if err != nil {
		return anchorstate.GenesisConfig{}, err
	}

	operators := make([]bridge.OperatorStake, len(gf.Bridge.Operators))
	for i, op := range gf.Bridge.Operators {
		id, err := decodeHash(fmt.Sprintf("bridge.operators[%d].operator_id", i), op.OperatorId)
		if err != nil {
			return anchorstate.GenesisConfig{}, err
		}
		operators[i] = bridge.OperatorStake{
			OperatorId: id,
			Amount:     xtypes.Amount(op.Amount),
		}
	}

	operatorKeys := make([][]byte, len(gf.Upgrade.OperatorKeys))
	for i, k := range gf.Upgrade.OperatorKeys {
		decoded, err := decodeHex(fmt.Sprintf("upgrade.operator_keys[%d]", i), k)
		if err != nil {
			return anchorstate.GenesisConfig{}, err
		}
		operatorKeys[i] = decoded
	}

	return anchorstate.GenesisConfig{
		GenesisHash:   genesisHash,
		GenesisHeight: xtypes.Height(gf.GenesisHeight),
		Core: core.GenesisConfig{
			CheckpointVerifyingKey: checkpointVK,
			SequencerPubKey:        coreSequencerKey,
		},
		Bridge: bridge.GenesisConfig{
			Operators: operators,
		},
		Checkpoint: checkpoint.GenesisConfig{
			SequencerPubKey: checkpointSequencerKey,
		},
		Upgrade: upgrade.GenesisConfig{
			OperatorKeys: operatorKeys,
			Threshold:    gf.Upgrade.Threshold,
		},
	}, nil
}

func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("config: %s: invalid hex: %w", field, err)
	}
	return b, nil
}

func decodeHash(field, s string) (xtypes.Hash, error) {
	b, err := decodeHex(field, s)
	if err != nil {
		return xtypes.Hash{}, err
	}
	var h xtypes.Hash
	if len(b) != len(h) {
		return xtypes.Hash{}, fmt.Errorf("config: %s: expected %d bytes, got %d", field, len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}
