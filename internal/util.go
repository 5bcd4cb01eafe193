package internal

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// logAction appends to the audit log. Failures are logged and otherwise ignored.
func logAction(db *pgxpool.Pool, actorID *int, action, details string) {
	if db == nil {
		slog.Debug("audit", "actor", actorID, "action", action, "details", details)
		return
	}
	_, err := db.Exec(context.Background(),
		"INSERT INTO logs(actor_id, action, details) VALUES ($1,$2,$3)",
		actorID, action, details,
	)
	if err != nil {
		slog.Warn("audit log insert failed", "action", action, "err", err)
	}
}
