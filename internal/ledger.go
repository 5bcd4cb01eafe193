package internal

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"model-arena/internal/credits"
)

// PGLedger keeps credit balances in users.credits.
type PGLedger struct {
	db *pgxpool.Pool
}

var _ credits.Ledger = (*PGLedger)(nil)

func NewPGLedger(db *pgxpool.Pool) *PGLedger { return &PGLedger{db: db} }

func (l *PGLedger) Balance(ctx context.Context, userID int) (int, error) {
	var n int
	err := qRow(ctx, l.db, psql.Select("credits").From("users").Where(sq.Eq{"id": userID})).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("credits: user %d: %w", userID, credits.ErrUnknownUser)
	}
	return n, err
}

func (l *PGLedger) Consume(ctx context.Context, userID int) (int, error) {
	var n int
	err := qRow(ctx, l.db, psql.Update("users").
		Set("credits", sq.Expr("credits - 1")).
		Where(sq.And{sq.Eq{"id": userID}, sq.Gt{"credits": 0}}).
		Suffix("RETURNING credits")).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := l.Balance(ctx, userID); err != nil {
			return 0, err
		}
		return 0, credits.ErrInsufficientCredits
	}
	return n, err
}

func (l *PGLedger) Refund(ctx context.Context, userID int) (int, error) {
	return l.add(ctx, l.db, userID, 1)
}

func (l *PGLedger) Grant(ctx context.Context, userID, amount int) (int, error) {
	if err := credits.ValidateAmount(amount); err != nil {
		return 0, err
	}
	return l.add(ctx, l.db, userID, amount)
}

// Redeem records the payment session and grants in one transaction; the
// payments primary key turns a replayed session into ErrAlreadyRedeemed.
func (l *PGLedger) Redeem(ctx context.Context, userID int, sessionID, packID string, amount int) (int, error) {
	if err := credits.ValidateAmount(amount); err != nil {
		return 0, err
	}
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := qExec(ctx, tx, psql.Insert("payments").
		Columns("session_id", "user_id", "pack_id", "credits").
		Values(sessionID, userID, packID, amount).
		Suffix("ON CONFLICT (session_id) DO NOTHING"))
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("credits: session %s: %w", sessionID, credits.ErrAlreadyRedeemed)
	}

	n, err := l.add(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit(ctx)
}

func (l *PGLedger) add(ctx context.Context, db querier, userID, amount int) (int, error) {
	var n int
	err := qRow(ctx, db, psql.Update("users").
		Set("credits", sq.Expr("LEAST(credits + ?, ?)", amount, credits.MaxBalance)).
		Where(sq.Eq{"id": userID}).
		Suffix("RETURNING credits")).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("credits: user %d: %w", userID, credits.ErrUnknownUser)
	}
	return n, err
}
