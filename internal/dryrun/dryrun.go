// Package dryrun implements the deterministic paper-execution matching
// engine (spec.md §4.7): funding accrual, market/limit order matching
// against a supplied book snapshot, position tracking with
// weighted-average entry, and forced liquidation. Given identical
// {runId, events}, two independently constructed engines produce
// byte-identical wallet balances, order/trade ID sequences, and final
// state. The engine never reads the wall clock; every timestamp it acts
// on comes from the event it is ticked with.
//
// Grounded on the teacher's orderbook.Simulator.Step → message-emission
// shape (one driving call per tick producing a batch of result
// messages), generalized from a single local maker/taker simulation to
// a full matching+funding+liquidation engine over fixed-point
// arithmetic (internal/fixedpoint) and deterministic IDs
// (internal/ids).
package dryrun

import (
	"fmt"

	"github.com/ndrandal/perpflow/internal/fixedpoint"
	"github.com/ndrandal/perpflow/internal/ids"
)

// Side is a position or order direction.
type Side int

const (
	SideLong Side = iota
	SideShort
)

// mainnetRestHost/mainnetWSHost are the only hostnames the engine will
// accept at construction (spec.md's "upstream guard"). Anything else —
// including a testnet host — is a fatal configuration error.
const (
	mainnetRestHost = "fapi.binance.com"
	mainnetWSHost   = "fstream.binance.com"
)

// HostConfig names the upstream hosts the engine was configured
// against; checked once at construction.
type HostConfig struct {
	RestHost string
	WSHost   string
}

// Config is the engine's fixed economic parameters.
type Config struct {
	Hosts HostConfig

	InitialWalletBalance  fixedpoint.Fp
	FundingIntervalMs     int64
	FundingRate           fixedpoint.Fp // per interval, signed; long pays when positive
	MaintenanceMarginRate fixedpoint.Fp
	TakerFeeRate          fixedpoint.Fp
	MakerFeeRate          fixedpoint.Fp
	MaxReduceOnlyLevels   int // book levels scanned when sweeping for forced liquidation
}

// DefaultConfig returns the spec's illustrative economic constants:
// 8h funding interval, 5000-unit starting wallet, 1% maintenance margin.
func DefaultConfig(hosts HostConfig) Config {
	return Config{
		Hosts:                 hosts,
		InitialWalletBalance:  fixedpoint.MustToFp(5000),
		FundingIntervalMs:     8 * 3600 * 1000,
		FundingRate:           fixedpoint.MustToFp(0.0001),
		MaintenanceMarginRate: fixedpoint.MustToFp(0.01),
		TakerFeeRate:          fixedpoint.MustToFp(0.0004),
		MakerFeeRate:          fixedpoint.MustToFp(0.0002),
		MaxReduceOnlyLevels:   50,
	}
}

// MainnetHosts returns the documented mainnet hostnames the upstream
// guard accepts.
func MainnetHosts() HostConfig {
	return HostConfig{RestHost: mainnetRestHost, WSHost: mainnetWSHost}
}

// ConfigError is a fatal configuration error raised at construction.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return fmt.Sprintf("dryrun: configuration error: %s", e.Reason) }

// Position is the engine's single open position for a symbol (spec.md
// §3). Nil on the Engine when flat.
type Position struct {
	Side            Side
	Qty             fixedpoint.Fp
	EntryVWAP       fixedpoint.Fp
	AddsUsed        int
	LastAddTsMs     int64
	CooldownUntilMs int64
}

// Engine is a single-symbol deterministic matching/dry-run engine.
type Engine struct {
	cfg Config
	ids *ids.Generator

	walletBalance fixedpoint.Fp
	position      *Position
	openOrders    map[string]*OpenOrder

	lastFundingTsMs int64
	haveFunding     bool
}

// New constructs an Engine scoped to runID. Returns a *ConfigError if
// cfg.Hosts does not exactly match the documented mainnet hosts.
func New(runID string, cfg Config) (*Engine, error) {
	if cfg.Hosts.RestHost != mainnetRestHost || cfg.Hosts.WSHost != mainnetWSHost {
		return nil, &ConfigError{Reason: fmt.Sprintf(
			"upstream hosts must be mainnet (%s / %s), got (%s / %s)",
			mainnetRestHost, mainnetWSHost, cfg.Hosts.RestHost, cfg.Hosts.WSHost)}
	}
	return &Engine{
		cfg:           cfg,
		ids:           ids.New(runID),
		walletBalance: cfg.InitialWalletBalance,
		openOrders:    make(map[string]*OpenOrder),
	}, nil
}

// WalletBalance returns the current wallet balance.
func (e *Engine) WalletBalance() fixedpoint.Fp { return e.walletBalance }

// Position returns a copy of the current position, or nil if flat.
func (e *Engine) Position() *Position {
	if e.position == nil {
		return nil
	}
	cp := *e.position
	return &cp
}

// OpenOrders returns a snapshot slice of all currently resting orders.
func (e *Engine) OpenOrders() []OpenOrder {
	out := make([]OpenOrder, 0, len(e.openOrders))
	for _, o := range e.openOrders {
		out = append(out, *o)
	}
	return out
}
