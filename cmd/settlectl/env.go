package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"clobsettle/config"
	"clobsettle/core/events"
	"clobsettle/core/state"
	"clobsettle/core/types"
	"clobsettle/native/bank"
	"clobsettle/native/dominator"
	"clobsettle/native/rewards"
	"clobsettle/observability"
	"clobsettle/observability/logging"
	"clobsettle/observability/metrics"
	"clobsettle/storage"
)

// env is the on-disk settlement state opened by a single command run.
type env struct {
	cfg      *config.Config
	db       storage.Database
	state    *state.Manager
	ledger   *bank.Ledger
	rewards  *rewards.Accumulator
	engine   *dominator.Engine
	recorder *events.Recorder
	logger   *slog.Logger
	height   uint64
}

func openEnv(opts *rootOptions) (*env, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", opts.configPath, err)
	}
	params, err := cfg.Dominator.Params()
	if err != nil {
		return nil, err
	}

	logger := opts.logger
	if logger == nil {
		logger = logging.Setup("settlectl", cfg.LogEnv, cfg.LogLevel)
	}
	logger = logger.With(slog.String("runId", uuid.NewString()), slog.String("network", cfg.NetworkName))

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	mgr, err := state.Open(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	acc, err := rewards.NewAccumulator(mgr, cfg.Rewards.Config())
	if err != nil {
		db.Close()
		return nil, err
	}

	e := &env{
		cfg:      cfg,
		db:       db,
		state:    mgr,
		ledger:   bank.NewLedger(mgr),
		rewards:  acc,
		recorder: &events.Recorder{},
		logger:   logger,
		height:   opts.height,
	}
	engine := dominator.NewEngine()
	engine.SetState(mgr)
	engine.SetLedger(e.ledger)
	engine.SetRewards(acc)
	engine.SetMetrics(metrics.Settlement())
	engine.SetEmitter(observability.MeteredEmitter{Next: e.recorder})
	engine.SetLogger(logger)
	engine.SetHeightFunc(func() uint64 { return e.height })
	if err := engine.SetParams(params); err != nil {
		db.Close()
		return nil, err
	}
	e.engine = engine
	return e, nil
}

// commit persists the state at the run height and writes the recorded events
// to w as JSON lines.
func (e *env) commit(w io.Writer) error {
	root, err := e.state.Commit(e.height)
	if err != nil {
		return err
	}
	e.logger.Debug("state committed", slog.String("root", root.Hex()), slog.Uint64("height", e.height))
	enc := json.NewEncoder(w)
	for _, ev := range e.recorder.Events() {
		typed, ok := ev.(interface{ Event() *types.Event })
		if !ok {
			continue
		}
		if err := enc.Encode(typed.Event()); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) Close() {
	e.db.Close()
}

func parseAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
