package internal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"model-arena/internal/arena"
	"model-arena/internal/credits"
	"model-arena/internal/payments"
)

// ------------------- Rounds -------------------

func playRoundStatus(err error) (int, string) {
	switch {
	case errors.Is(err, arena.ErrGatewayRateLimited):
		return http.StatusTooManyRequests, arena.ErrGatewayRateLimited.Error()
	case errors.Is(err, arena.ErrGatewayQuotaExhausted):
		return http.StatusPaymentRequired, arena.ErrGatewayQuotaExhausted.Error()
	case errors.Is(err, arena.ErrInvalidInput):
		return http.StatusInternalServerError, "prompt is required"
	case errors.Is(err, arena.ErrInsufficientPersonas):
		return http.StatusInternalServerError, "Failed to fetch models"
	}
	return http.StatusInternalServerError, "failed to start round"
}

// POST /play-round
func PlayRound(o *arena.Orchestrator, db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req playRoundRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			slog.Warn("play-round: bad body", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid request body"})
			return
		}

		h, err := o.StartRound(c.Request.Context(), req.Prompt)
		if err != nil {
			status, msg := playRoundStatus(err)
			slog.Error("play-round", "err", err, "status", status)
			c.JSON(status, gin.H{"error": msg})
			return
		}

		if v, ok := c.Get("uid"); ok {
			id := v.(int)
			logAction(db, &id, "play_round", "round_id="+h.RoundID)
		}
		c.JSON(200, h)
	}
}

func voteStatus(err error) (int, string) {
	switch {
	case errors.Is(err, arena.ErrInvalidInput):
		return http.StatusBadRequest, "winner is not part of this round"
	case errors.Is(err, arena.ErrNotFound):
		return http.StatusNotFound, "Round not found"
	case errors.Is(err, arena.ErrAlreadyComplete):
		return http.StatusConflict, "Round already completed"
	case errors.Is(err, arena.ErrNotVotable):
		return http.StatusConflict, "Round is not open for voting"
	}
	return http.StatusInternalServerError, "failed to record vote"
}

// POST /vote
func Vote(o *arena.Orchestrator, db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req voteRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RoundID == "" || req.WinnerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "round_id and winner_id required"})
			return
		}

		res, err := o.SubmitVote(c.Request.Context(), req.RoundID, req.WinnerID)
		if err != nil {
			status, msg := voteStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("vote", "err", err)
			} else {
				slog.Info("vote rejected", "err", err, "status", status)
			}
			c.JSON(status, gin.H{"error": msg})
			return
		}

		logAction(db, nil, "vote", "round_id="+req.RoundID+" winner_id="+req.WinnerID)
		c.JSON(200, res)
	}
}

// GET /api/personas
func Leaderboard(o *arena.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ps, err := o.Leaderboard(c.Request.Context())
		if err != nil {
			slog.Error("leaderboard", "err", err)
			c.JSON(500, gin.H{"error": "db"})
			return
		}
		if ps == nil {
			ps = []arena.Persona{}
		}
		c.JSON(200, ps)
	}
}

// GET /api/rounds?limit=
func History(o *arena.Orchestrator) gin.HandlerFunc {
	return listRounds(o, "")
}

// GET /api/admin/rounds?status=answering|voting|complete|all
func AdminRounds(o *arena.Orchestrator) gin.HandlerFunc {
	return listRounds(o, "status")
}

func listRounds(o *arena.Orchestrator, statusParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := arena.RoundFilter{}
		f.Limit, _ = strconv.Atoi(c.Query("limit"))
		if statusParam != "" {
			if st := c.Query(statusParam); st != "" && st != "all" {
				f.Status = arena.Status(st)
			}
		}

		rs, err := o.Rounds(c.Request.Context(), f)
		if err != nil {
			slog.Error("list rounds", "err", err)
			c.JSON(500, gin.H{"error": "db"})
			return
		}
		if rs == nil {
			rs = []arena.RoundSummary{}
		}
		c.JSON(200, rs)
	}
}

// GET /api/rounds/:id
func RoundDetail(o *arena.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := o.Round(c.Request.Context(), c.Param("id"))
		if errors.Is(err, arena.ErrNotFound) {
			c.JSON(404, gin.H{"error": "Round not found"})
			return
		}
		if err != nil {
			slog.Error("round detail", "err", err)
			c.JSON(500, gin.H{"error": "db"})
			return
		}
		c.JSON(200, d)
	}
}

// ------------------- Account -------------------

func Me(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uid(c)
		var u User
		err := db.QueryRow(context.Background(),
			"SELECT id, username, role, credits FROM users WHERE id=$1", id,
		).Scan(&u.ID, &u.Username, &u.Role, &u.Credits)
		if err != nil {
			c.JSON(500, gin.H{"error": "db"})
			return
		}
		c.JSON(200, u)
	}
}

// POST /api/payments/verify
func VerifyPayment(v payments.Verifier, ledger credits.Ledger, db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments not configured"})
			return
		}
		userID := uid(c)
		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.PackID == "" {
			c.JSON(400, gin.H{"error": "Missing session_id or pack_id"})
			return
		}
		ctx := c.Request.Context()

		sess, err := v.Session(ctx, req.SessionID)
		if err != nil {
			slog.Error("payment lookup", "session", req.SessionID, "err", err)
			c.JSON(502, gin.H{"error": "payment lookup failed"})
			return
		}
		amount, err := payments.Check(sess, req.PackID, strconv.Itoa(userID))
		switch {
		case errors.Is(err, payments.ErrUnknownPack):
			c.JSON(400, gin.H{"error": payments.ErrUnknownPack.Error()})
			return
		case errors.Is(err, payments.ErrNotPaid):
			c.JSON(402, gin.H{"error": payments.ErrNotPaid.Error()})
			return
		case errors.Is(err, payments.ErrWrongOwner):
			c.JSON(403, gin.H{"error": payments.ErrWrongOwner.Error()})
			return
		}

		total, err := ledger.Redeem(ctx, userID, req.SessionID, req.PackID, amount)
		if errors.Is(err, credits.ErrAlreadyRedeemed) {
			c.JSON(409, gin.H{"error": credits.ErrAlreadyRedeemed.Error()})
			return
		}
		if err != nil {
			slog.Error("redeem payment", "session", req.SessionID, "err", err)
			c.JSON(500, gin.H{"error": "db"})
			return
		}

		logAction(db, &userID, "verify_payment", "session_id="+req.SessionID+" pack="+req.PackID)
		c.JSON(200, gin.H{"success": true, "new_total": total})
	}
}

// ------------------- Admin -------------------

func AdminLogs(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(context.Background(),
			`SELECT l.id,
			        to_char(l.created_at, 'YYYY-MM-DD HH24:MI:SS') AS created_at,
			        COALESCE(u.username,'(anonymous)') AS actor,
			        l.action,
			        l.details
			 FROM logs l
			 LEFT JOIN users u ON u.id=l.actor_id
			 ORDER BY l.id DESC LIMIT 200`)
		if err != nil {
			c.JSON(500, gin.H{"error": "db"})
			return
		}
		defer rows.Close()

		type row struct {
			ID        int64  `json:"id"`
			CreatedAt string `json:"created_at"`
			Actor     string `json:"actor"`
			Action    string `json:"action"`
			Details   string `json:"details"`
		}

		out := []row{}
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Actor, &r.Action, &r.Details); err != nil {
				c.JSON(500, gin.H{"error": "scan"})
				return
			}
			out = append(out, r)
		}

		c.JSON(200, out)
	}
}

func AdminUsers(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(context.Background(),
			"SELECT id, username, role, credits FROM users ORDER BY id ASC",
		)
		if err != nil {
			c.JSON(500, gin.H{"error": "db"})
			return
		}
		defer rows.Close()

		out := []User{}
		for rows.Next() {
			var u User
			if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.Credits); err != nil {
				c.JSON(500, gin.H{"error": "scan"})
				return
			}
			out = append(out, u)
		}
		c.JSON(200, out)
	}
}

// POST /api/admin/users/:id/credits
func AdminGiftCredits(ledger credits.Ledger, db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := uid(c)
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(400, gin.H{"error": "bad user id"})
			return
		}
		var req struct {
			Amount int `json:"amount"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad request"})
			return
		}

		total, err := ledger.Grant(c.Request.Context(), id, req.Amount)
		switch {
		case errors.Is(err, credits.ErrInvalidAmount):
			c.JSON(400, gin.H{"error": credits.ErrInvalidAmount.Error()})
			return
		case errors.Is(err, credits.ErrUnknownUser):
			c.JSON(404, gin.H{"error": "user not found"})
			return
		case err != nil:
			slog.Error("gift credits", "uid", id, "err", err)
			c.JSON(500, gin.H{"error": "db"})
			return
		}

		logAction(db, &actor, "admin_gift_credits", "user_id="+strconv.Itoa(id)+" amount="+strconv.Itoa(req.Amount))
		c.JSON(200, gin.H{"ok": true, "new_total": total})
	}
}

// POST /api/admin/personas
func AdminCreatePersona(o *arena.Orchestrator, db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := uid(c)
		var req personaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad request"})
			return
		}

		p, err := o.AddPersona(c.Request.Context(), req.Name, req.Description)
		if errors.Is(err, arena.ErrInvalidInput) {
			c.JSON(400, gin.H{"error": "name and description required"})
			return
		}
		if err != nil {
			slog.Error("create persona", "err", err)
			c.JSON(500, gin.H{"error": "db"})
			return
		}

		logAction(db, &actor, "admin_create_persona", p.Name)
		c.JSON(200, p)
	}
}
