package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/types"
)

// Journal persists the fill log, the equity curve and the closed-trade
// history for one run in an in-memory DuckDB database, and exports them to
// Parquet at the end. The fill log is the authoritative record: replaying
// it must reproduce every realized number in the summary.
type Journal struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewJournal opens an in-memory journal database.
func NewJournal(logger *logger.Logger) (*Journal, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	return &Journal{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the journal tables.
func (j *Journal) Initialize() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE,
			price DOUBLE,
			fee DOUBLE,
			timestamp TIMESTAMP,
			reason TEXT,
			message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create fills table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS equity_snapshots (
			timestamp TIMESTAMP,
			cash DOUBLE,
			equity DOUBLE,
			margin_used DOUBLE,
			unrealized_pnl DOUBLE,
			realized_pnl DOUBLE,
			drawdown DOUBLE,
			drawdown_pct DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create equity_snapshots table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS closed_trades (
			symbol TEXT,
			asset_class TEXT,
			realized_pnl DOUBLE,
			fees DOUBLE,
			opened_at TIMESTAMP,
			closed_at TIMESTAMP,
			reason TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create closed_trades table: %w", err)
	}

	return nil
}

// RecordFill appends one fill to the log.
func (j *Journal) RecordFill(fill types.Fill) error {
	_, err := j.sq.
		Insert("fills").
		Columns("order_id", "symbol", "side", "quantity", "price", "fee", "timestamp", "reason", "message").
		Values(fill.OrderID, fill.Symbol, string(fill.Side), fill.Quantity, fill.Price, fill.Fee,
			fill.Timestamp, fill.Reason.Reason, fill.Reason.Message).
		RunWith(j.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}

	return nil
}

// RecordSnapshot appends one equity curve point.
func (j *Journal) RecordSnapshot(snapshot types.EquitySnapshot) error {
	_, err := j.sq.
		Insert("equity_snapshots").
		Columns("timestamp", "cash", "equity", "margin_used", "unrealized_pnl", "realized_pnl", "drawdown", "drawdown_pct").
		Values(snapshot.Timestamp, snapshot.Cash, snapshot.Equity, snapshot.MarginUsed,
			snapshot.UnrealizedPnL, snapshot.RealizedPnL, snapshot.Drawdown, snapshot.DrawdownPct).
		RunWith(j.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert equity snapshot: %w", err)
	}

	return nil
}

// RecordClosedTrade appends one closed trade.
func (j *Journal) RecordClosedTrade(trade types.ClosedTrade) error {
	_, err := j.sq.
		Insert("closed_trades").
		Columns("symbol", "asset_class", "realized_pnl", "fees", "opened_at", "closed_at", "reason").
		Values(trade.Symbol, string(trade.AssetClass), trade.RealizedPnL, trade.Fees,
			trade.OpenTimestamp, trade.CloseTimestamp, trade.Reason).
		RunWith(j.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert closed trade: %w", err)
	}

	return nil
}

// GetAllFills returns the fill log in execution order.
func (j *Journal) GetAllFills() ([]types.Fill, error) {
	rows, err := j.sq.
		Select("order_id", "symbol", "side", "quantity", "price", "fee", "timestamp", "reason", "message").
		From("fills").
		OrderBy("timestamp ASC").
		RunWith(j.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []types.Fill

	for rows.Next() {
		var fill types.Fill

		var side string

		err := rows.Scan(
			&fill.OrderID,
			&fill.Symbol,
			&side,
			&fill.Quantity,
			&fill.Price,
			&fill.Fee,
			&fill.Timestamp,
			&fill.Reason.Reason,
			&fill.Reason.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}

		fill.Side = types.Side(side)
		fills = append(fills, fill)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fills: %w", err)
	}

	return fills, nil
}

// GetSnapshots returns the equity curve in time order.
func (j *Journal) GetSnapshots() ([]types.EquitySnapshot, error) {
	rows, err := j.sq.
		Select("timestamp", "cash", "equity", "margin_used", "unrealized_pnl", "realized_pnl", "drawdown", "drawdown_pct").
		From("equity_snapshots").
		OrderBy("timestamp ASC").
		RunWith(j.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query equity snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.EquitySnapshot

	for rows.Next() {
		var snapshot types.EquitySnapshot

		err := rows.Scan(
			&snapshot.Timestamp,
			&snapshot.Cash,
			&snapshot.Equity,
			&snapshot.MarginUsed,
			&snapshot.UnrealizedPnL,
			&snapshot.RealizedPnL,
			&snapshot.Drawdown,
			&snapshot.DrawdownPct,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equity snapshot: %w", err)
		}

		snapshots = append(snapshots, snapshot)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity snapshots: %w", err)
	}

	return snapshots, nil
}

// Cleanup drops and recreates the journal tables so the same journal can
// back multiple isolated runs.
func (j *Journal) Cleanup() error {
	// Raw SQL for dropping tables - Squirrel has no DROP syntax.
	_, err := j.db.Exec(`
		DROP TABLE IF EXISTS fills;
		DROP TABLE IF EXISTS equity_snapshots;
		DROP TABLE IF EXISTS closed_trades;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup journal tables: %w", err)
	}

	return j.Initialize()
}

// Write exports the journal tables to Parquet files in the given directory.
func (j *Journal) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Raw SQL as Squirrel doesn't support COPY.
	exports := map[string]string{
		"fills":            filepath.Join(path, "fills.parquet"),
		"equity_snapshots": filepath.Join(path, "equity_curve.parquet"),
		"closed_trades":    filepath.Join(path, "closed_trades.parquet"),
	}

	for table, target := range exports {
		_, err := j.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target))
		if err != nil {
			return fmt.Errorf("failed to export %s to Parquet: %w", table, err)
		}
	}

	j.logger.Info("Exported run journal to Parquet",
		zap.String("path", path),
	)

	return nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
