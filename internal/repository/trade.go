package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-signals/internal/models"
)

const tradeColumns = `id, token_address, signal, quote, actual_output, slippage_pct,
	status, tx_id, error, error_kind, is_paper_trade, timestamp`

// TradeRepo persists the append-only trade journal.
type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

// SaveTrade inserts a record. Records are immutable, so a repeated id is
// ignored rather than updated.
func (r *TradeRepo) SaveTrade(ctx context.Context, t models.TradeRecord) error {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO trade_records
		 (id, token_address, trading_day, signal_type, signal_source, signal, quote,
		  input_amount, actual_output, slippage_pct, status, tx_id, error, error_kind,
		  is_paper_trade, timestamp)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, t.TokenAddress, TradingDay(ts), string(t.Signal.Type), string(t.Signal.Source),
		t.Signal, t.Quote, t.InputAmount(), t.ActualOutput, t.SlippagePct, string(t.Status),
		t.TxID, t.Error, t.ErrorKind, t.IsPaperTrade, ts,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

// GetAll returns records oldest first. A non-positive limit returns every
// record; otherwise the most recent limit records. If paperMode is non-nil,
// filters by is_paper_trade.
func (r *TradeRepo) GetAll(ctx context.Context, limit int, paperMode *bool) ([]models.TradeRecord, error) {
	query, args := buildFilteredQuery(
		`SELECT `+tradeColumns+` FROM trade_records WHERE 1=1`,
		nil,
		paperMode,
	)
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := collect(rows, scanTrade)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// GetByDay returns the records of one trading day in time order.
func (r *TradeRepo) GetByDay(ctx context.Context, tradingDay string, paperMode *bool) ([]models.TradeRecord, error) {
	query, args := buildFilteredQuery(
		`SELECT `+tradeColumns+` FROM trade_records WHERE trading_day = $1`,
		[]any{tradingDay},
		paperMode,
	)
	query += " ORDER BY timestamp ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanTrade)
}

// CountDay counts the records journaled on the trading day containing now.
func (r *TradeRepo) CountDay(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trade_records WHERE trading_day = $1`,
		TradingDay(now),
	).Scan(&count)
	return count, err
}

// buildFilteredQuery appends an is_paper_trade clause when paperMode is non-nil.
func buildFilteredQuery(baseQuery string, baseArgs []any, paperMode *bool) (string, []any) {
	if paperMode == nil {
		return baseQuery, baseArgs
	}
	args := append(baseArgs, *paperMode)
	return baseQuery + fmt.Sprintf(" AND is_paper_trade = $%d", len(args)), args
}

func scanTrade(row scannable) (models.TradeRecord, error) {
	var (
		t      models.TradeRecord
		status string
	)
	err := row.Scan(
		&t.ID, &t.TokenAddress, &t.Signal, &t.Quote, &t.ActualOutput, &t.SlippagePct,
		&status, &t.TxID, &t.Error, &t.ErrorKind, &t.IsPaperTrade, &t.Timestamp,
	)
	if err != nil {
		return models.TradeRecord{}, err
	}
	t.Status = models.TradeStatus(status)
	return t, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
