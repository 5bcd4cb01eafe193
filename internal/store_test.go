package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-arena/internal/arena"
	"model-arena/internal/credits"
)

// testDB connects to DATABASE_URL and applies the schema. Tests using it
// are skipped when no database is configured.
func testDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(ctx, db))
	return db
}

func newPersona(t *testing.T, s *PGStore) arena.Persona {
	t.Helper()
	id := uuid.NewString()
	p := arena.Persona{ID: id, Name: "p-" + id, Description: "You are " + id, Rating: arena.DefaultRating, CreatedAt: time.Now()}
	require.NoError(t, s.CreatePersona(context.Background(), p))
	return p
}

func newUser(t *testing.T, db *pgxpool.Pool, balance int) int {
	t.Helper()
	var id int
	err := db.QueryRow(context.Background(),
		"INSERT INTO users(username, pass_hash, credits) VALUES ($1, 'x', $2) RETURNING id",
		"u-"+uuid.NewString(), balance,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func findPersona(t *testing.T, s *PGStore, id string) arena.Persona {
	t.Helper()
	ps, err := s.ListPersonas(context.Background())
	require.NoError(t, err)
	for _, p := range ps {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("persona %s not found", id)
	return arena.Persona{}
}

func TestPGFinalizeRoundOnce(t *testing.T) {
	ctx := context.Background()
	s := NewPGStore(testDB(t))
	a, b := newPersona(t, s), newPersona(t, s)

	r := arena.Round{ID: uuid.NewString(), Prompt: "p", PersonaA: a.ID, PersonaB: b.ID, Status: arena.StatusAnswering, CreatedAt: time.Now()}
	require.NoError(t, s.CreateRound(ctx, r))
	require.NoError(t, s.SaveAnswers(ctx, r.ID, []arena.Answer{
		{ID: uuid.NewString(), PersonaID: a.ID, Content: "a"},
		{ID: uuid.NewString(), PersonaID: b.ID, Content: "b"},
	}))

	settle := func(w, l arena.Persona) arena.Settlement {
		w.Rating, l.Rating = arena.ComputeOutcome(float64(w.Rating), float64(l.Rating), arena.DefaultK)
		w.Wins++
		l.Losses++
		return arena.Settlement{Winner: w, Loser: l}
	}

	const voters = 16
	var wg sync.WaitGroup
	errs := make([]error, voters)
	for i := range voters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			winner := a.ID
			if i%2 == 1 {
				winner = b.ID
			}
			_, errs[i] = s.FinalizeRound(ctx, r.ID, winner, settle)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, arena.ErrAlreadyComplete)
	}
	assert.Equal(t, 1, ok)

	pa, pb := findPersona(t, s, a.ID), findPersona(t, s, b.ID)
	assert.Equal(t, 1, pa.Wins+pa.Losses)
	assert.Equal(t, 1, pb.Wins+pb.Losses)
	assert.Equal(t, 2*arena.DefaultRating, pa.Rating+pb.Rating)

	got, err := s.GetRound(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, arena.StatusComplete, got.Status)
	require.NotNil(t, got.WinnerID)
	assert.True(t, got.Involves(*got.WinnerID))
}

func TestPGFinalizeRoundErrors(t *testing.T) {
	ctx := context.Background()
	s := NewPGStore(testDB(t))
	a, b, c := newPersona(t, s), newPersona(t, s), newPersona(t, s)
	noop := func(w, l arena.Persona) arena.Settlement { return arena.Settlement{Winner: w, Loser: l} }

	_, err := s.FinalizeRound(ctx, uuid.NewString(), a.ID, noop)
	assert.ErrorIs(t, err, arena.ErrNotFound)

	r := arena.Round{ID: uuid.NewString(), Prompt: "p", PersonaA: a.ID, PersonaB: b.ID, Status: arena.StatusAnswering, CreatedAt: time.Now()}
	require.NoError(t, s.CreateRound(ctx, r))
	_, err = s.FinalizeRound(ctx, r.ID, a.ID, noop)
	assert.ErrorIs(t, err, arena.ErrNotVotable)

	require.NoError(t, s.SaveAnswers(ctx, r.ID, []arena.Answer{{ID: uuid.NewString(), PersonaID: a.ID, Content: "a"}}))
	_, err = s.FinalizeRound(ctx, r.ID, c.ID, noop)
	assert.ErrorIs(t, err, arena.ErrInvalidInput)
}

func TestPGSaveAnswersRequiresAnswering(t *testing.T) {
	ctx := context.Background()
	s := NewPGStore(testDB(t))
	a, b := newPersona(t, s), newPersona(t, s)

	r := arena.Round{ID: uuid.NewString(), Prompt: "p", PersonaA: a.ID, PersonaB: b.ID, Status: arena.StatusAnswering, CreatedAt: time.Now()}
	require.NoError(t, s.CreateRound(ctx, r))
	answers := []arena.Answer{{ID: uuid.NewString(), PersonaID: a.ID, Content: "a"}}
	require.NoError(t, s.SaveAnswers(ctx, r.ID, answers))

	err := s.SaveAnswers(ctx, r.ID, []arena.Answer{{ID: uuid.NewString(), PersonaID: b.ID, Content: "b"}})
	assert.ErrorIs(t, err, arena.ErrNotVotable)

	got, err := s.ListAnswers(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Content)

	err = s.SaveAnswers(ctx, uuid.NewString(), answers)
	assert.ErrorIs(t, err, arena.ErrNotFound)
}

func TestPGRoundThroughOrchestrator(t *testing.T) {
	ctx := context.Background()
	s := NewPGStore(testDB(t))
	newPersona(t, s)
	newPersona(t, s)

	o := arena.New(s, stubGen{}, arena.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	h, err := o.StartRound(ctx, "pg prompt")
	require.NoError(t, err)

	res, err := o.SubmitVote(ctx, h.RoundID, h.Responses[1].PersonaID)
	require.NoError(t, err)
	assert.Positive(t, res.Winner.Delta)
	assert.Negative(t, res.Loser.Delta)

	rs, err := o.Rounds(ctx, arena.RoundFilter{Status: arena.StatusComplete, Limit: 200})
	require.NoError(t, err)
	var found *arena.RoundSummary
	for i := range rs {
		if rs[i].ID == h.RoundID {
			found = &rs[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.Winner)
	assert.Equal(t, res.Winner.Name, *found.Winner)
}

func TestPGLedger(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	l := NewPGLedger(db)
	user := newUser(t, db, 0)

	_, err := l.Consume(ctx, user)
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)

	_, err = l.Consume(ctx, -1)
	assert.ErrorIs(t, err, credits.ErrUnknownUser)

	n, err := l.Grant(ctx, user, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.Consume(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = l.Refund(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.Grant(ctx, user, credits.MaxBalance)
	require.NoError(t, err)
	assert.Equal(t, credits.MaxBalance, n)

	_, err = l.Grant(ctx, user, 0)
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)
}

func TestPGLedgerRedeemOnce(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	l := NewPGLedger(db)
	user := newUser(t, db, 1)
	session := "cs_" + uuid.NewString()

	n, err := l.Redeem(ctx, user, session, "6pack", 6)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = l.Redeem(ctx, user, session, "6pack", 6)
	assert.ErrorIs(t, err, credits.ErrAlreadyRedeemed)

	b, err := l.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 7, b)

	var pack string
	require.NoError(t, db.QueryRow(ctx, "SELECT pack_id FROM payments WHERE session_id=$1", session).Scan(&pack))
	assert.Equal(t, "6pack", pack)

	_, err = l.Redeem(ctx, -1, "cs_"+uuid.NewString(), "6pack", 6)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, credits.ErrAlreadyRedeemed))
}

func TestPGRegisterAndLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testDB(t)
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{router: NewRouter(Deps{
		DB:            db,
		Arena:         arena.New(NewPGStore(db), stubGen{}, arena.WithLogger(discard)),
		Credits:       NewPGLedger(db),
		Log:           discard,
		Secret:        testSecret,
		SignupCredits: 3,
		RateLimit:     100,
		RateBurst:     100,
	})}
	name := "user-" + uuid.NewString()

	w, _ := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": name, "password": "secret1", "password2": "secret2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": name, "password": "secret1", "password2": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": name, "password": "secret1", "password2": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": name, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": name, "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	require.NotEmpty(t, w.Result().Cookies())
	assert.Equal(t, cookieName, w.Result().Cookies()[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var me User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, name, me.Username)
	assert.Equal(t, "user", me.Role)
	assert.Equal(t, 3, me.Credits)
}
