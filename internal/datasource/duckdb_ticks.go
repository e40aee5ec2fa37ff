package datasource

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// DuckDBTickSource streams ticks out of a DuckDB view over a CSV or
// Parquet file. Rows with NaN or non-positive prices are skipped rather
// than failing the run; real feeds contain gaps.
type DuckDBTickSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDuckDBTickSource opens an in-memory DuckDB instance for tick replay.
func NewDuckDBTickSource(logger *logger.Logger) (*DuckDBTickSource, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open tick database", err)
	}

	return &DuckDBTickSource{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Initialize creates the ticks view over the given file. The file must
// provide symbol, timestamp, bid and ask columns.
func (d *DuckDBTickSource) Initialize(path string) error {
	d.logger.Debug("Initializing tick source", zap.String("path", path))

	_, err := d.db.Exec(`DROP VIEW IF EXISTS ticks;`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to drop existing ticks view", err)
	}

	reader := "read_parquet"
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		reader = "read_csv_auto"
	}

	// Raw SQL as Squirrel doesn't support CREATE VIEW.
	query := fmt.Sprintf(`
		CREATE VIEW ticks AS
		SELECT symbol, timestamp, bid, ask FROM %s('%s')
		ORDER BY timestamp ASC;
	`, reader, path)

	_, err = d.db.Exec(query)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to create ticks view", err)
	}

	return nil
}

// Count returns the number of rows in the ticks view inside the window,
// including rows that ReadAll will skip.
func (d *DuckDBTickSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	query := d.sq.
		Select("COUNT(*)").
		From("ticks")

	if start.IsSome() {
		query = query.Where(squirrel.GtOrEq{"timestamp": start.Unwrap()})
	}

	if end.IsSome() {
		query = query.Where(squirrel.LtOrEq{"timestamp": end.Unwrap()})
	}

	var count int

	err := query.RunWith(d.db).QueryRow().Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count ticks", err)
	}

	return count, nil
}

// ReadAll yields ticks in timestamp order, restricted to the optional
// window. Unusable rows (NaN, non-positive or crossed quotes) are logged
// and skipped.
func (d *DuckDBTickSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.PriceTick, error) bool) {
	return func(yield func(types.PriceTick, error) bool) {
		query := d.sq.
			Select("symbol", "timestamp", "bid", "ask").
			From("ticks").
			OrderBy("timestamp ASC")

		if start.IsSome() {
			query = query.Where(squirrel.GtOrEq{"timestamp": start.Unwrap()})
		}

		if end.IsSome() {
			query = query.Where(squirrel.LtOrEq{"timestamp": end.Unwrap()})
		}

		rows, err := query.
			RunWith(d.db).
			Query()
		if err != nil {
			yield(types.PriceTick{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query ticks", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var tick types.PriceTick

			if err := rows.Scan(&tick.Symbol, &tick.Timestamp, &tick.Bid, &tick.Ask); err != nil {
				yield(types.PriceTick{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan tick", err))
				return
			}

			if !usableTick(tick) {
				d.logger.Debug("Skipping unusable tick",
					zap.String("symbol", tick.Symbol),
					zap.Time("timestamp", tick.Timestamp),
					zap.Float64("bid", tick.Bid),
					zap.Float64("ask", tick.Ask),
				)

				continue
			}

			if !yield(tick, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.PriceTick{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating ticks", err))
		}
	}
}

// Close implements TickSource.
func (d *DuckDBTickSource) Close() error {
	return d.db.Close()
}

// usableTick filters the gaps a real feed produces: missing quotes come
// through as NaN, halted books as zero or crossed prices.
func usableTick(tick types.PriceTick) bool {
	if tick.Symbol == "" || tick.Timestamp.IsZero() {
		return false
	}

	if math.IsNaN(tick.Bid) || math.IsNaN(tick.Ask) {
		return false
	}

	if tick.Bid <= 0 || tick.Ask <= 0 || tick.Ask < tick.Bid {
		return false
	}

	return true
}

// SliceTickSource replays an in-memory tick slice. Used by tests and by
// callers that already hold their data.
type SliceTickSource struct {
	ticks []types.PriceTick
}

// NewSliceTickSource creates a source over the given ticks. The slice must
// already be in timestamp order.
func NewSliceTickSource(ticks []types.PriceTick) *SliceTickSource {
	return &SliceTickSource{ticks: ticks}
}

// Initialize implements TickSource; the path is ignored.
func (s *SliceTickSource) Initialize(_ string) error {
	return nil
}

// ReadAll yields the ticks inside the window, skipping unusable rows the
// same way the DuckDB source does.
func (s *SliceTickSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.PriceTick, error) bool) {
	return func(yield func(types.PriceTick, error) bool) {
		for _, tick := range s.ticks {
			if !usableTick(tick) || !insideWindow(tick, start, end) {
				continue
			}

			if !yield(tick, nil) {
				return
			}
		}
	}
}

// Count implements TickSource.
func (s *SliceTickSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	count := 0

	for _, tick := range s.ticks {
		if insideWindow(tick, start, end) {
			count++
		}
	}

	return count, nil
}

func insideWindow(tick types.PriceTick, start optional.Option[time.Time], end optional.Option[time.Time]) bool {
	if start.IsSome() && tick.Timestamp.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && tick.Timestamp.After(end.Unwrap()) {
		return false
	}

	return true
}

// Close implements TickSource.
func (s *SliceTickSource) Close() error {
	return nil
}

var _ TickSource = (*DuckDBTickSource)(nil)

var _ TickSource = (*SliceTickSource)(nil)
