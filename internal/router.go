package internal

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"model-arena/internal/arena"
	"model-arena/internal/credits"
	"model-arena/internal/payments"
)

// Deps are the collaborators behind the HTTP surface. DB may be nil, in
// which case the audit log goes to slog and account routes are not mounted.
type Deps struct {
	DB       *pgxpool.Pool
	Arena    *arena.Orchestrator
	Credits  credits.Ledger
	Payments payments.Verifier
	Log      *slog.Logger

	Secret        string
	SecureCookie  bool
	SignupCredits int
	RateLimit     float64
	RateBurst     int
}

func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Log), CORS())

	auth := Auth(d.Secret)
	play := []gin.HandlerFunc{auth, RateLimit(d.RateLimit, d.RateBurst), CreditGate(d.Credits), PlayRound(d.Arena, d.DB)}
	vote := Vote(d.Arena, d.DB)

	r.POST("/play-round", play...)
	r.POST("/vote", vote)

	api := r.Group("/api")
	{
		api.POST("/play-round", play...)
		api.POST("/vote", vote)

		api.GET("/personas", Leaderboard(d.Arena))
		api.GET("/rounds", History(d.Arena))
		api.GET("/rounds/:id", RoundDetail(d.Arena))

		api.POST("/payments/verify", auth, VerifyPayment(d.Payments, d.Credits, d.DB))

		admin := api.Group("/admin", auth, RequireAdmin())
		{
			admin.POST("/users/:id/credits", AdminGiftCredits(d.Credits, d.DB))
			admin.POST("/personas", AdminCreatePersona(d.Arena, d.DB))
			admin.GET("/rounds", AdminRounds(d.Arena)) // ?status=answering|voting|complete|all
		}

		if d.DB != nil {
			api.POST("/auth/register", Register(d.DB, d.SignupCredits))
			api.POST("/auth/login", Login(d.DB, d.Secret, d.SecureCookie))
			api.POST("/auth/logout", Logout())
			api.GET("/me", auth, Me(d.DB))

			admin.GET("/logs", AdminLogs(d.DB))
			admin.GET("/users", AdminUsers(d.DB))
		}
	}

	return r
}
