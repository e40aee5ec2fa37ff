package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	engine "github.com/chronoton-lab/chronoton/internal/backtest/engine_v1"
	"github.com/chronoton-lab/chronoton/internal/datasource"
	"github.com/chronoton-lab/chronoton/internal/logger"
)

// backtestAction replays the tick file against the intent file and writes
// the journal, equity curve and summary to the output folder.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPath := cmd.String("data")
	intentsPath := cmd.String("intents")
	outputPath := cmd.String("output")

	config, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logInstance.Sync()

	backtester := engine.NewBacktestEngineV1WithLogger(logInstance)
	if err := backtester.Initialize(string(config)); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	ticks, err := datasource.NewDuckDBTickSource(logInstance)
	if err != nil {
		return fmt.Errorf("failed to create tick source: %w", err)
	}
	defer ticks.Close()

	if err := ticks.Initialize(dataPath); err != nil {
		return fmt.Errorf("failed to load tick data: %w", err)
	}

	intents, err := datasource.NewDuckDBIntentSource(intentsPath, logInstance)
	if err != nil {
		return fmt.Errorf("failed to load intents: %w", err)
	}
	defer intents.Close()

	backtester.SetDataSource(ticks)
	backtester.SetIntentSource(intents)
	backtester.SetResultsFolder(outputPath)

	var bar *progressbar.ProgressBar

	onProgress := engine.OnProgressCallback(func(current, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total))
		}

		bar.Set(current) //nolint:errcheck
	})

	if err := backtester.Run(optional.Some(onProgress)); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	summary, err := backtester.Summary()
	if err != nil {
		return err
	}

	fmt.Printf("\nFinal equity: %.2f (%.2f%%)\n", summary.FinalEquity, summary.TotalReturnPct*100)
	fmt.Printf("Trades: %d (win rate %.1f%%), liquidations: %d\n",
		summary.NumberOfTrades, summary.WinRate*100, summary.Liquidations)
	fmt.Printf("Results written to %s\n", outputPath)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay a tick history against a strategy intent log",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the yaml run configuration",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the tick file (CSV or Parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "intents",
				Aliases:  []string{"i"},
				Usage:    "Path to the order intent file (CSV or Parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory the run results are written to",
				Value:   "./results",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
