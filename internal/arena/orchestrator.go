package arena

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAnswerWords = 150
	emptyAnswer        = "...I got nothing."

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Orchestrator drives rounds from creation to completion.
type Orchestrator struct {
	store Store
	gen   Generator
	log   *slog.Logger
	k     float64
	words int
	now   func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithK sets the rating adjustment factor.
func WithK(k float64) Option { return func(o *Orchestrator) { o.k = k } }

// WithAnswerWords caps the length requested from each persona.
func WithAnswerWords(n int) Option { return func(o *Orchestrator) { o.words = n } }

func WithRand(r *rand.Rand) Option { return func(o *Orchestrator) { o.rng = r } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(store Store, gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store: store,
		gen:   gen,
		log:   slog.Default(),
		k:     DefaultK,
		words: defaultAnswerWords,
		now:   time.Now,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Response is one labelled answer handed to the judge.
type Response struct {
	Label     string `json:"label"`
	PersonaID string `json:"model_id"`
	Content   string `json:"content"`
}

// RoundHandle is the votable result of StartRound.
type RoundHandle struct {
	RoundID   string     `json:"round_id"`
	Prompt    string     `json:"prompt"`
	Responses []Response `json:"responses"`
}

// Standing is one side of a finalized vote.
type Standing struct {
	Name   string `json:"name"`
	Rating int    `json:"elo"`
	Delta  int    `json:"elo_change"`
}

type VoteResult struct {
	Winner Standing `json:"winner"`
	Loser  Standing `json:"loser"`
}

// StartRound picks two personas, generates both answers concurrently and
// leaves the round open for voting.
func (o *Orchestrator) StartRound(ctx context.Context, prompt string) (*RoundHandle, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("arena: prompt is required: %w", ErrInvalidInput)
	}

	personas, err := o.store.ListPersonas(ctx)
	if err != nil {
		return nil, storeErr("list personas", err)
	}
	if len(personas) < 2 {
		return nil, fmt.Errorf("arena: %d persona(s) available: %w", len(personas), ErrInsufficientPersonas)
	}
	a, b := o.pickTwo(personas)

	round := Round{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		PersonaA:  a.ID,
		PersonaB:  b.ID,
		Status:    StatusAnswering,
		CreatedAt: o.now(),
	}
	if err := o.store.CreateRound(ctx, round); err != nil {
		return nil, storeErr("create round", err)
	}
	o.log.Info("round started", "round_id", round.ID, "persona_a", a.Name, "persona_b", b.Name)

	contents := make([]string, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range []Persona{a, b} {
		g.Go(func() error {
			text, err := o.gen.Generate(gctx, o.instructions(p), prompt)
			if err != nil {
				return generationErr(p.Name, err)
			}
			if strings.TrimSpace(text) == "" {
				text = emptyAnswer
			}
			contents[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.log.Warn("round generation failed", "round_id", round.ID, "err", err)
		return nil, err
	}

	answers := []Answer{
		{ID: uuid.NewString(), RoundID: round.ID, PersonaID: a.ID, Content: contents[0]},
		{ID: uuid.NewString(), RoundID: round.ID, PersonaID: b.ID, Content: contents[1]},
	}
	if err := o.store.SaveAnswers(ctx, round.ID, answers); err != nil {
		return nil, storeErr("save answers", err)
	}

	return &RoundHandle{
		RoundID: round.ID,
		Prompt:  prompt,
		Responses: []Response{
			{Label: "A", PersonaID: a.ID, Content: contents[0]},
			{Label: "B", PersonaID: b.ID, Content: contents[1]},
		},
	}, nil
}

// SubmitVote finalizes a round exactly once and applies the rating change.
func (o *Orchestrator) SubmitVote(ctx context.Context, roundID, winnerID string) (*VoteResult, error) {
	if roundID == "" || winnerID == "" {
		return nil, fmt.Errorf("arena: round_id and winner_id required: %w", ErrInvalidInput)
	}

	var before Settlement
	after, err := o.store.FinalizeRound(ctx, roundID, winnerID, func(winner, loser Persona) Settlement {
		before = Settlement{Winner: winner, Loser: loser}
		newWinner, newLoser := ComputeOutcome(float64(winner.Rating), float64(loser.Rating), o.k)
		winner.Rating, winner.Wins = newWinner, winner.Wins+1
		loser.Rating, loser.Losses = newLoser, loser.Losses+1
		return Settlement{Winner: winner, Loser: loser}
	})
	if err != nil {
		return nil, storeErr("finalize round "+roundID, err)
	}

	res := &VoteResult{
		Winner: Standing{Name: after.Winner.Name, Rating: after.Winner.Rating, Delta: after.Winner.Rating - before.Winner.Rating},
		Loser:  Standing{Name: after.Loser.Name, Rating: after.Loser.Rating, Delta: after.Loser.Rating - before.Loser.Rating},
	}
	o.log.Info("round complete", "round_id", roundID,
		"winner", res.Winner.Name, "winner_delta", res.Winner.Delta,
		"loser", res.Loser.Name, "loser_delta", res.Loser.Delta)
	return res, nil
}

// Leaderboard lists personas by rating, best first.
func (o *Orchestrator) Leaderboard(ctx context.Context) ([]Persona, error) {
	ps, err := o.store.ListPersonas(ctx)
	if err != nil {
		return nil, storeErr("list personas", err)
	}
	sortByRating(ps)
	return ps, nil
}

// Rounds lists recent rounds, newest first.
func (o *Orchestrator) Rounds(ctx context.Context, f RoundFilter) ([]RoundSummary, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultHistoryLimit
	case f.Limit > maxHistoryLimit:
		f.Limit = maxHistoryLimit
	}
	rs, err := o.store.ListRounds(ctx, f)
	if err != nil {
		return nil, storeErr("list rounds", err)
	}
	return rs, nil
}

// RoundDetail is a round with its labelled answers. Persona ids on the
// answers stay empty until the round is complete.
type RoundDetail struct {
	Round
	Responses []Response `json:"responses"`
}

func (o *Orchestrator) Round(ctx context.Context, id string) (*RoundDetail, error) {
	r, err := o.store.GetRound(ctx, id)
	if err != nil {
		return nil, storeErr("get round "+id, err)
	}
	answers, err := o.store.ListAnswers(ctx, id)
	if err != nil {
		return nil, storeErr("list answers "+id, err)
	}

	d := &RoundDetail{Round: *r, Responses: []Response{}}
	for _, ans := range answers {
		resp := Response{Label: "A", Content: ans.Content}
		if ans.PersonaID == r.PersonaB {
			resp.Label = "B"
		}
		if r.Status == StatusComplete {
			resp.PersonaID = ans.PersonaID
		}
		d.Responses = append(d.Responses, resp)
	}
	if r.Status != StatusComplete {
		d.PersonaA, d.PersonaB = "", ""
	}
	sortByLabel(d.Responses)
	return d, nil
}

// AddPersona registers a new competitor at the default rating.
func (o *Orchestrator) AddPersona(ctx context.Context, name, description string) (*Persona, error) {
	name, description = strings.TrimSpace(name), strings.TrimSpace(description)
	if name == "" || description == "" {
		return nil, fmt.Errorf("arena: name and description required: %w", ErrInvalidInput)
	}
	p := Persona{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Rating:      DefaultRating,
		CreatedAt:   o.now(),
	}
	if err := o.store.CreatePersona(ctx, p); err != nil {
		return nil, storeErr("create persona", err)
	}
	return &p, nil
}

func (o *Orchestrator) instructions(p Persona) string {
	return fmt.Sprintf("%s\n\nKeep your response under %d words. Be entertaining and stay in character.", p.Description, o.words)
}
