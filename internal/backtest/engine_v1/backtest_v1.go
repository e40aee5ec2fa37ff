package engine

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/chronoton-lab/chronoton/internal/datasource"
	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/policy"
	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// OnProgressCallback reports replay progress as (processed, total) ticks.
type OnProgressCallback func(current, total int)

// BacktestEngineV1 wires the execution engine, ledger, accumulator and
// journal into one replay loop: ticks stream in timestamp order, intents
// merge in by timestamp, and every fill is journaled. Runs are isolated:
// Run resets all mutable state before replaying.
type BacktestEngineV1 struct {
	config        Config
	log           *logger.Logger
	policies      *policy.Registry
	ledger        *Ledger
	execution     *ExecutionEngine
	accumulator   *Accumulator
	journal       *Journal
	ticks         datasource.TickSource
	intents       datasource.IntentSource
	resultsFolder string
	summary       optional.Option[types.Summary]
}

// NewBacktestEngineV1 creates an engine with a production logger.
func NewBacktestEngineV1() (*BacktestEngineV1, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	return &BacktestEngineV1{log: log}, nil
}

// NewBacktestEngineV1WithLogger creates an engine with the given logger.
func NewBacktestEngineV1WithLogger(log *logger.Logger) *BacktestEngineV1 {
	return &BacktestEngineV1{log: log}
}

// Initialize parses and validates the run configuration and opens the
// journal.
func (b *BacktestEngineV1) Initialize(configContent string) error {
	config, err := ParseConfig([]byte(configContent))
	if err != nil {
		return err
	}

	policies, err := config.BuildRegistry()
	if err != nil {
		return err
	}

	journal, err := NewJournal(b.log)
	if err != nil {
		return err
	}

	if err := journal.Initialize(); err != nil {
		return err
	}

	b.config = config
	b.policies = policies
	b.journal = journal

	return nil
}

// SetDataSource sets the tick stream for the run.
func (b *BacktestEngineV1) SetDataSource(ticks datasource.TickSource) {
	b.ticks = ticks
}

// SetIntentSource sets the strategy intent stream for the run.
func (b *BacktestEngineV1) SetIntentSource(intents datasource.IntentSource) {
	b.intents = intents
}

// SetResultsFolder sets the directory the run journal and summary are
// written to. Empty disables writing.
func (b *BacktestEngineV1) SetResultsFolder(folder string) {
	b.resultsFolder = folder
}

// Summary returns the summary of the last completed run.
func (b *BacktestEngineV1) Summary() (types.Summary, error) {
	if b.summary.IsNone() {
		return types.Summary{}, errors.New(errors.ErrCodeRunNotInitialized, "no completed run")
	}

	return b.summary.Unwrap(), nil
}

// EquityCurve returns the equity curve of the last run.
func (b *BacktestEngineV1) EquityCurve() []types.EquitySnapshot {
	if b.accumulator == nil {
		return nil
	}

	return b.accumulator.EquityCurve()
}

// Journal returns the run journal.
func (b *BacktestEngineV1) Journal() *Journal {
	return b.journal
}

// Run replays the tick stream against the intent stream. Intents become
// eligible once the replay clock reaches their timestamp and are submitted
// after that tick has been processed, so a market intent executes at the
// prices of the first tick at or after its timestamp.
//
// A margin breach terminates the replay: results collected so far are
// still written, and the breach is returned as the run error.
func (b *BacktestEngineV1) Run(onProgress optional.Option[OnProgressCallback]) error {
	if err := b.preRunCheck(); err != nil {
		return err
	}

	if err := b.resetRun(); err != nil {
		return err
	}

	total, err := b.ticks.Count(b.config.StartTime, b.config.EndTime)
	if err != nil {
		return fmt.Errorf("failed to count ticks: %w", err)
	}

	nextIntent, stopIntents := iter.Pull2(iter.Seq2[types.OrderIntent, error](b.intents.ReadAll()))
	defer stopIntents()

	pendingIntent := optional.None[types.OrderIntent]()
	processed := 0

	var runErr error

	for tick, err := range b.ticks.ReadAll(b.config.StartTime, b.config.EndTime) {
		if err != nil {
			return fmt.Errorf("failed to read tick: %w", err)
		}

		fills, tickErr := b.execution.OnTick(tick)

		if err := b.recordFills(fills); err != nil {
			return err
		}

		if tickErr != nil {
			runErr = tickErr
			break
		}

		// Submit every intent whose timestamp the replay clock has reached.
		for {
			if pendingIntent.IsNone() {
				intent, intentErr, ok := nextIntent()
				if !ok {
					break
				}

				if intentErr != nil {
					return fmt.Errorf("failed to read intent: %w", intentErr)
				}

				pendingIntent = optional.Some(intent)
			}

			intent := pendingIntent.Unwrap()
			if intent.Timestamp.After(tick.Timestamp) {
				break
			}

			pendingIntent = optional.None[types.OrderIntent]()

			fill, err := b.execution.Submit(intent)
			if err != nil {
				return err
			}

			if fill != nil {
				if err := b.recordFills([]types.Fill{*fill}); err != nil {
					return err
				}
			}
		}

		// Fees and slippage on a submitted fill can push equity negative
		// even when the tick itself did not.
		if err := b.ledger.VerifyEquity(); err != nil {
			runErr = err
			break
		}

		if err := b.recordClosedTrades(); err != nil {
			return err
		}

		snapshot := b.accumulator.Observe(tick.Timestamp, b.ledger.AccountInfo())
		if err := b.journal.RecordSnapshot(snapshot); err != nil {
			return err
		}

		processed++

		if onProgress.IsSome() {
			onProgress.Unwrap()(processed, total)
		}
	}

	// Intents dated after the final tick never became eligible.
	for {
		intent, intentErr, ok := nextIntent()
		if !ok {
			break
		}

		if intentErr != nil {
			return fmt.Errorf("failed to read intent: %w", intentErr)
		}

		b.execution.ExpireIntent(intent)
	}

	if pendingIntent.IsSome() {
		b.execution.ExpireIntent(pendingIntent.Unwrap())
	}

	b.execution.ExpirePending()

	if err := b.recordClosedTrades(); err != nil {
		return err
	}

	summary := b.accumulator.Summary(b.ledger.AccountInfo(), b.execution.Counters())
	b.summary = optional.Some(summary)

	if b.resultsFolder != "" {
		if err := b.writeResults(summary); err != nil {
			return err
		}
	}

	if runErr != nil {
		b.log.Error("Run terminated", zap.Error(runErr))
		return runErr
	}

	b.log.Info("Run completed",
		zap.Int("ticks", processed),
		zap.Float64("final_equity", summary.FinalEquity),
		zap.Int("trades", summary.NumberOfTrades),
	)

	return nil
}

// preRunCheck verifies the engine has everything a run needs.
func (b *BacktestEngineV1) preRunCheck() error {
	if b.policies == nil || b.journal == nil {
		return errors.New(errors.ErrCodeRunNotInitialized, "engine is not initialized")
	}

	if b.ticks == nil {
		return errors.New(errors.ErrCodeRunNotInitialized, "no tick data source set")
	}

	if b.intents == nil {
		return errors.New(errors.ErrCodeRunNotInitialized, "no intent source set")
	}

	return nil
}

// resetRun builds fresh per-run state so sequential runs cannot leak into
// each other.
func (b *BacktestEngineV1) resetRun() error {
	if err := b.journal.Cleanup(); err != nil {
		return err
	}

	b.ledger = NewLedger(b.config.Instruments, b.policies, b.config.InitialCapital, b.log)
	b.execution = NewExecutionEngine(b.config.Instruments, b.policies, b.ledger, b.log)
	b.accumulator = NewAccumulator(b.config.InitialCapital)
	b.summary = optional.None[types.Summary]()

	return nil
}

// recordFills journals fills in execution order.
func (b *BacktestEngineV1) recordFills(fills []types.Fill) error {
	for _, fill := range fills {
		if err := b.journal.RecordFill(fill); err != nil {
			return err
		}
	}

	return nil
}

// recordClosedTrades feeds trades closed since the last call into the
// accumulator and the journal.
func (b *BacktestEngineV1) recordClosedTrades() error {
	closed := b.ledger.ClosedTrades()
	for _, trade := range closed[b.accumulator.trades:] {
		b.accumulator.ObserveTrade(trade)

		if err := b.journal.RecordClosedTrade(trade); err != nil {
			return err
		}
	}

	return nil
}

// writeResults exports the journal and the summary to the results folder.
func (b *BacktestEngineV1) writeResults(summary types.Summary) error {
	if err := os.MkdirAll(b.resultsFolder, 0755); err != nil {
		return fmt.Errorf("failed to create results folder: %w", err)
	}

	if err := b.journal.Write(b.resultsFolder); err != nil {
		return err
	}

	content, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	summaryPath := filepath.Join(b.resultsFolder, "summary.yaml")
	if err := os.WriteFile(summaryPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	b.log.Info("Wrote run results", zap.String("path", b.resultsFolder))

	return nil
}
