package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-signals/internal/models"
)

const positionColumns = `id, token_address, entry_price, amount, stop_loss_price, take_profit_price,
	status, opened_at, closed_at, exit_price, entry_trade_id, exit_trade_id`

type PositionRepo struct {
	pool *pgxpool.Pool
}

func NewPositionRepo(pool *pgxpool.Pool) *PositionRepo {
	return &PositionRepo{pool: pool}
}

// SavePosition upserts a position. Closed rows are terminal and are never
// reopened by a later write.
func (r *PositionRepo) SavePosition(ctx context.Context, p models.Position) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO positions
		 (id, token_address, entry_price, amount, stop_loss_price, take_profit_price,
		  status, opened_at, closed_at, exit_price, entry_trade_id, exit_trade_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (id) DO UPDATE SET
		   status        = EXCLUDED.status,
		   closed_at     = EXCLUDED.closed_at,
		   exit_price    = EXCLUDED.exit_price,
		   exit_trade_id = EXCLUDED.exit_trade_id,
		   updated_at    = NOW()
		 WHERE positions.status = 'OPEN'`,
		p.ID, p.TokenAddress, p.EntryPrice, p.Amount, p.StopLossPrice, p.TakeProfitPrice,
		string(p.Status), p.OpenedAt, p.ClosedAt, p.ExitPrice, p.EntryTradeID, p.ExitTradeID,
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.ID, err)
	}
	return nil
}

func (r *PositionRepo) LoadOpenPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status = 'OPEN' ORDER BY opened_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanPosition)
}

// GetClosed returns the most recently closed positions first.
func (r *PositionRepo) GetClosed(ctx context.Context, limit int) ([]models.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status <> 'OPEN'
		 ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanPosition)
}

func (r *PositionRepo) Get(ctx context.Context, id string) (*models.Position, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPosition(row scannable) (models.Position, error) {
	var (
		p      models.Position
		status string
	)
	err := row.Scan(
		&p.ID, &p.TokenAddress, &p.EntryPrice, &p.Amount, &p.StopLossPrice, &p.TakeProfitPrice,
		&status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.EntryTradeID, &p.ExitTradeID,
	)
	if err != nil {
		return models.Position{}, err
	}
	p.Status = models.PositionStatus(status)
	return p, nil
}
