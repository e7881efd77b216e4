package config

import "time"

// ServiceConfig holds the orchestration service's own settings, mirroring
// Config's env-var-driven Load()/getEnv* pattern but scoped to the OL/ASM
// node rather than the legacy Accumulate/Ethereum validator this package
// originally configured.
type ServiceConfig struct {
	// ListenAddr is the address the health/status HTTP server binds.
	ListenAddr string

	// DataDir is the base directory for on-disk state: the GoLevelDB
	// instance backing pkg/storage's KV traits, opened whether or not
	// PostgresURL is set.
	DataDir string

	// GenesisFile is the path to the YAML genesis file pkg/config.
	// LoadGenesisFile reads to seed the ASM's AnchorState.
	GenesisFile string

	// PostgresURL, if set, backs the broadcast/writer DB with
	// pkg/storage/postgres.BroadcastStore instead of the KV-backed one.
	PostgresURL string

	// CheckpointSyncPollInterval/-StallThreshold configure
	// pkg/checkpointsync.Syncer.
	CheckpointSyncPollInterval   time.Duration
	CheckpointSyncStallThreshold time.Duration
}

// LoadServiceConfig reads ServiceConfig from the environment, applying the
// same defaults-plus-override posture as Load().
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		ListenAddr:                   getEnv("OL_LISTEN_ADDR", "0.0.0.0:8090"),
		DataDir:                      getEnv("OL_DATA_DIR", "./data"),
		GenesisFile:                  getEnv("OL_GENESIS_FILE", "./genesis.yaml"),
		PostgresURL:                  getEnv("OL_BROADCAST_DATABASE_URL", ""),
		CheckpointSyncPollInterval:   getEnvDuration("OL_CHECKPOINT_SYNC_POLL_INTERVAL", 10*time.Second),
		CheckpointSyncStallThreshold: getEnvDuration("OL_CHECKPOINT_SYNC_STALL_THRESHOLD", 2*time.Minute),
	}
}
