package internal

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"model-arena/internal/credits"
)

const cookieName = "arena_token"

type claims struct {
	UserID int    `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth accepts the session cookie or an "Authorization: Bearer" header.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, _ := c.Cookie(cookieName)
		if tokenStr == "" {
			tokenStr = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}

		tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad token"})
			return
		}

		cl, ok := tok.Claims.(*claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad claims"})
			return
		}

		c.Set("uid", cl.UserID)
		c.Set("role", cl.Role)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

func uid(c *gin.Context) int {
	v, _ := c.Get("uid")
	return v.(int)
}

// CreditGate spends one generation before the handler runs and gives it
// back if the handler did not answer 200.
func CreditGate(ledger credits.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := uid(c)
		ctx := c.Request.Context()

		if _, err := ledger.Consume(ctx, userID); err != nil {
			if errors.Is(err, credits.ErrInsufficientCredits) {
				c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": credits.ErrInsufficientCredits.Error()})
				return
			}
			slog.Error("consume credit", "uid", userID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}

		c.Next()

		if c.Writer.Status() != http.StatusOK {
			if _, err := ledger.Refund(ctx, userID); err != nil {
				slog.Error("refund credit", "uid", userID, "err", err)
			}
		}
	}
}

// clientLimiter hands out one token bucket per client IP. Buckets idle for
// limiterIdle are swept every limiterSweep; at maxClients the least
// recently seen bucket is dropped to make room.
type clientLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxClients int
	lastSweep  time.Time
	clients    map[string]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

const (
	limiterIdle       = 10 * time.Minute
	limiterSweep      = time.Minute
	limiterMaxClients = 10000
)

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		maxClients: limiterMaxClients,
		clients:    map[string]*limiterEntry{},
	}
}

func (l *clientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= limiterSweep {
		l.sweep(now)
	}

	e, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.evictOldest()
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *clientLimiter) sweep(now time.Time) {
	for k, e := range l.clients {
		if now.Sub(e.seen) > limiterIdle {
			delete(l.clients, k)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
		found  bool
	)
	for k, e := range l.clients {
		if !found || e.seen.Before(seen) {
			oldest, seen, found = k, e.seen, true
		}
	}
	if found {
		delete(l.clients, oldest)
	}
}

func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	l := newClientLimiter(perSecond, burst)
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// CORS opens every endpoint to any origin.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		MaxAge:          12 * time.Hour,
	})
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).Round(time.Microsecond),
			"ip", c.ClientIP(),
		)
	}
}
