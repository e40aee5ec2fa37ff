package datasource

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/chronoton-lab/chronoton/internal/logger"
	"github.com/chronoton-lab/chronoton/internal/types"
	"github.com/chronoton-lab/chronoton/pkg/errors"
)

// DuckDBIntentSource streams order intents out of a CSV or Parquet file.
// Expected columns: id, symbol, side, kind, quantity, timestamp,
// limit_price (nullable), reason, message.
type DuckDBIntentSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDuckDBIntentSource opens an intent source over the given file.
func NewDuckDBIntentSource(path string, logger *logger.Logger) (*DuckDBIntentSource, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open intent database", err)
	}

	reader := "read_parquet"
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		reader = "read_csv_auto"
	}

	query := fmt.Sprintf(`
		CREATE VIEW intents AS
		SELECT id, symbol, side, kind, quantity, timestamp, limit_price, reason, message
		FROM %s('%s')
		ORDER BY timestamp ASC;
	`, reader, path)

	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to create intents view", err)
	}

	return &DuckDBIntentSource{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// ReadAll yields intents in timestamp order.
func (d *DuckDBIntentSource) ReadAll() func(yield func(types.OrderIntent, error) bool) {
	return func(yield func(types.OrderIntent, error) bool) {
		rows, err := d.sq.
			Select("id", "symbol", "side", "kind", "quantity", "timestamp", "limit_price", "reason", "message").
			From("intents").
			OrderBy("timestamp ASC").
			RunWith(d.db).
			Query()
		if err != nil {
			yield(types.OrderIntent{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query intents", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				intent     types.OrderIntent
				side       string
				kind       string
				limitPrice sql.NullFloat64
			)

			err := rows.Scan(
				&intent.ID,
				&intent.Symbol,
				&side,
				&kind,
				&intent.Quantity,
				&intent.Timestamp,
				&limitPrice,
				&intent.Reason.Reason,
				&intent.Reason.Message,
			)
			if err != nil {
				yield(types.OrderIntent{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan intent", err))
				return
			}

			intent.Side = types.Side(side)
			intent.Kind = types.OrderKind(kind)

			if limitPrice.Valid {
				intent.LimitPrice = optional.Some(limitPrice.Float64)
			}

			if intent.Reason.Reason == "" {
				intent.Reason.Reason = types.OrderReasonStrategy
			}

			d.logger.Debug("Read intent",
				zap.String("id", intent.ID),
				zap.String("symbol", intent.Symbol),
				zap.String("side", side),
			)

			if !yield(intent, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.OrderIntent{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating intents", err))
		}
	}
}

// Close implements IntentSource.
func (d *DuckDBIntentSource) Close() error {
	return d.db.Close()
}

// SliceIntentSource serves an in-memory intent slice. The slice must
// already be in timestamp order.
type SliceIntentSource struct {
	intents []types.OrderIntent
}

// NewSliceIntentSource creates a source over the given intents.
func NewSliceIntentSource(intents []types.OrderIntent) *SliceIntentSource {
	return &SliceIntentSource{intents: intents}
}

// ReadAll implements IntentSource.
func (s *SliceIntentSource) ReadAll() func(yield func(types.OrderIntent, error) bool) {
	return func(yield func(types.OrderIntent, error) bool) {
		for _, intent := range s.intents {
			if !yield(intent, nil) {
				return
			}
		}
	}
}

// Close implements IntentSource.
func (s *SliceIntentSource) Close() error {
	return nil
}

var _ IntentSource = (*DuckDBIntentSource)(nil)

var _ IntentSource = (*SliceIntentSource)(nil)
