package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/strataorch/orchestration/pkg/anchorstate"
	"github.com/strataorch/orchestration/pkg/checkpointsync"
	"github.com/strataorch/orchestration/pkg/config"
	"github.com/strataorch/orchestration/pkg/damirror"
	"github.com/strataorch/orchestration/pkg/exectracker"
	"github.com/strataorch/orchestration/pkg/paas"
	"github.com/strataorch/orchestration/pkg/storage"
	"github.com/strataorch/orchestration/pkg/storage/postgres"
	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/subprotocol/core"
	"github.com/strataorch/orchestration/pkg/svc"
	"github.com/strataorch/orchestration/pkg/txcodec"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// serviceStatus is this node's health snapshot, the way the teacher's
// global healthStatus/HealthStatus pair reports per-component readiness on
// /health, generalized to this node's own components.
type serviceStatus struct {
	mu sync.RWMutex

	storageReady       bool
	genesisLoaded      bool
	damirrorEnabled    bool
	checkpointSyncing  bool
	execTrackerRunning bool
	startedAt          time.Time
}

func (s *serviceStatus) snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"storage_ready":        s.storageReady,
		"genesis_loaded":       s.genesisLoaded,
		"damirror_enabled":     s.damirrorEnabled,
		"checkpoint_syncing":   s.checkpointSyncing,
		"exec_tracker_running": s.execTrackerRunning,
		"uptime_seconds":       time.Since(s.startedAt).Seconds(),
	}
}

var health = &serviceStatus{startedAt: time.Now()}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("starting orchestration node")

	var (
		genesisFile = flag.String("genesis-file", "", "path to the ASM genesis YAML file (overrides OL_GENESIS_FILE)")
		dataDir     = flag.String("data-dir", "", "base directory for on-disk storage (overrides OL_DATA_DIR)")
		listenAddr  = flag.String("listen-addr", "", "address for the health/status HTTP server (overrides OL_LISTEN_ADDR)")
		showHelp    = flag.Bool("help", false, "show help message")
	)
	flag.Parse()
	if *showHelp {
		printHelp()
		return
	}

	cfg := config.LoadServiceConfig()
	if *genesisFile != "" {
		cfg.GenesisFile = *genesisFile
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	log.Printf("[genesis] loading ASM genesis from %s", cfg.GenesisFile)
	genesisCfg, reg, err := loadGenesis(cfg.GenesisFile)
	if err != nil {
		log.Fatalf("failed to load genesis: %v", err)
	}
	log.Printf("[genesis] ASM genesis at height %d, hash %x", genesisCfg.GenesisHeight, genesisCfg.GenesisHash)
	health.mu.Lock()
	health.genesisLoaded = true
	health.mu.Unlock()

	log.Printf("[storage] opening storage under %s", cfg.DataDir)
	stores, closeStorage, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer closeStorage()
	health.mu.Lock()
	health.storageReady = true
	health.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror, err := damirror.New(ctx, damirror.DefaultConfig())
	if err != nil {
		log.Printf("warning: DA mirror disabled: %v", err)
		mirror, _ = damirror.New(ctx, &damirror.Config{Enabled: false})
	}
	defer mirror.Close()
	health.mu.Lock()
	health.damirrorEnabled = mirror.IsEnabled()
	health.mu.Unlock()
	log.Printf("[damirror] enabled=%v", mirror.IsEnabled())

	// Proof-as-a-Service handler. Programs are registered here as proving
	// circuits come online; none are wired yet, so Submit will error for
	// any unregistered program name until a circuit is added to this map.
	resolver := paas.NewGnarkHostResolver(map[string]paas.Program{})
	proofHandler := paas.NewHandler(paas.HandlerConfig{
		Resolver: resolver,
	})
	_ = proofHandler

	genesisExecBlock := exectracker.BlockRecord{}
	tracker := exectracker.New(stores.execStore, genesisExecBlock, svc.Config{Name: "exec-tracker"})
	if err := tracker.Start(ctx); err != nil {
		log.Fatalf("failed to start exec tracker: %v", err)
	}
	defer tracker.Stop()
	health.mu.Lock()
	health.execTrackerRunning = true
	health.mu.Unlock()

	asmState := &asmStateHolder{}
	syncer := checkpointsync.New(checkpointsync.Config{
		PollInterval:   cfg.CheckpointSyncPollInterval,
		StallThreshold: cfg.CheckpointSyncStallThreshold,
	}, asmState, loggingBridgeForwarder{})
	if err := syncer.Start(); err != nil {
		log.Fatalf("failed to start checkpoint syncer: %v", err)
	}
	defer syncer.Stop()
	health.mu.Lock()
	health.checkpointSyncing = true
	health.mu.Unlock()

	// TODO: wire a Bitcoin RPC block-poll loop here that fetches each new
	// confirmed block, calls anchorstate.ApplyBlock (using reg, the genesis
	// subprotocol registry above) to advance the ASM, and updates asmState
	// with the resulting checkpoint tip. No Bitcoin client exists in this
	// tree yet — the ASM/OL state machine and every downstream consumer
	// (storage, exec tracker, checkpoint sync, DA mirror) are wired and
	// ready for it.
	_ = reg

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%v\n", health.snapshot())
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	go func() {
		log.Printf("[http] listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down orchestration node")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Printf("orchestration node stopped")
}

// loadGenesis reads and decodes the ASM genesis file, then constructs the
// genesis AnchorState and subprotocol registry from it.
func loadGenesis(path string) (*anchorstate.GenesisConfig, *subprotocol.Registry, error) {
	gf, err := config.LoadGenesisFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load genesis file: %w", err)
	}
	genesisCfg, err := gf.ToAnchorGenesis()
	if err != nil {
		return nil, nil, fmt.Errorf("decode genesis file: %w", err)
	}
	_, reg, err := anchorstate.NewGenesis(genesisCfg, anchorstate.Dependencies{
		CoreVerifyProof: txcodec.VerifyCheckpointProof,
		CoreParse:       txcodec.ParseCheckpointProofTx,
		BridgeParse:     txcodec.ParseBridgeTx,
		CheckpointParse: txcodec.ParseCheckpointTx,
		UpgradeParse:    txcodec.ParseUpgradeTx,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("construct genesis ASM state: %w", err)
	}
	return &genesisCfg, reg, nil
}

type nodeStores struct {
	l1         *storage.L1Store
	ol         *storage.OLStore
	olState    *storage.OLStateStore
	asm        *storage.ASMStore
	checkpoint *storage.CheckpointStore
	proof      *storage.ProofStore
	broadcast  interface{}
	execStore  exectracker.Store
}

// openStorage opens the GoLevelDB-backed KV store (or, if OL_BROADCAST_DATABASE_URL
// is set, additionally a Postgres-backed broadcast store) and wraps it with
// every storage trait spec §6 names.
func openStorage(cfg *config.ServiceConfig) (*nodeStores, func(), error) {
	db, err := dbm.NewGoLevelDB("orchestration", cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open goleveldb: %w", err)
	}
	kv := storage.NewCometKV(db)

	var broadcastCloser func()
	var broadcastStore interface{}
	if cfg.PostgresURL != "" {
		bs, err := postgres.NewBroadcastStore(postgres.Config{DatabaseURL: cfg.PostgresURL})
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("open postgres broadcast store: %w", err)
		}
		if err := bs.EnsureSchema(context.Background()); err != nil {
			bs.Close()
			db.Close()
			return nil, nil, fmt.Errorf("ensure broadcast schema: %w", err)
		}
		broadcastStore = bs
		broadcastCloser = func() { bs.Close() }
	} else {
		broadcastStore = storage.NewBroadcastStore(kv)
	}

	ns := &nodeStores{
		l1:         storage.NewL1Store(kv),
		ol:         storage.NewOLStore(kv),
		olState:    storage.NewOLStateStore(kv),
		asm:        storage.NewASMStore(kv),
		checkpoint: storage.NewCheckpointStore(kv),
		proof:      storage.NewProofStore(kv),
		broadcast:  broadcastStore,
		execStore:  execStoreAdapter{},
	}

	closer := func() {
		if broadcastCloser != nil {
			broadcastCloser()
		}
		db.Close()
	}
	return ns, closer, nil
}

// execStoreAdapter is a placeholder exectracker.Store until EE exec records
// are persisted through pkg/storage; every lookup fails with an error, which
// exectracker.NewBlock reports as a recoverable fetch error rather than a
// fatal one.
type execStoreAdapter struct{}

func (execStoreAdapter) GetBlock(hash xtypes.Hash) (*exectracker.BlockRecord, error) {
	return nil, fmt.Errorf("exec record store: not yet wired to persistent storage")
}

// asmStateHolder adapts the live ASM checkpoint tip to
// checkpointsync.CheckpointFetcher. It starts at the zero tip; the Bitcoin
// block-poll loop (see the TODO in main) is responsible for calling Advance
// as new checkpoints verify.
type asmStateHolder struct {
	mu      sync.Mutex
	tip     checkpointsync.Tip
	intents []core.WithdrawalIntentMsg
}

func (a *asmStateHolder) LatestVerifiedTip(ctx context.Context) (checkpointsync.Tip, []core.WithdrawalIntentMsg, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tip, a.intents, nil
}

func (a *asmStateHolder) Advance(tip checkpointsync.Tip, intents []core.WithdrawalIntentMsg) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tip = tip
	a.intents = intents
}

// loggingBridgeForwarder is a placeholder checkpointsync.BridgeForwarder:
// it logs every withdrawal intent rather than delivering it to a bridge
// operator's signer service, which is deployment-specific and out of this
// tree's scope.
type loggingBridgeForwarder struct{}

func (loggingBridgeForwarder) ForwardWithdrawalIntent(ctx context.Context, epoch xtypes.Epoch, intent core.WithdrawalIntentMsg) error {
	log.Printf("[checkpointsync] withdrawal intent for epoch %d: account=%x amount=%d", epoch, intent.AccountId, intent.Amount)
	return nil
}

func printHelp() {
	fmt.Println("orchestration - Bitcoin-anchored orchestration/ASM node")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  OL_GENESIS_FILE                    path to the ASM genesis YAML file")
	fmt.Println("  OL_DATA_DIR                        base directory for on-disk storage")
	fmt.Println("  OL_LISTEN_ADDR                      health/status HTTP server address")
	fmt.Println("  OL_BROADCAST_DATABASE_URL           Postgres DSN for the broadcast/writer DB")
	fmt.Println("  OL_CHECKPOINT_SYNC_POLL_INTERVAL    checkpoint sync poll interval")
	fmt.Println("  OL_CHECKPOINT_SYNC_STALL_THRESHOLD  checkpoint sync stall threshold")
	fmt.Println("  FIREBASE_PROJECT_ID, GOOGLE_APPLICATION_CREDENTIALS, DAMIRROR_ENABLED")
	fmt.Println("                                       optional Firestore DA mirror settings")
}
