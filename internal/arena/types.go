package arena

import (
	"context"
	"time"
)

// Status is the lifecycle state of a round. It only moves forward.
type Status string

const (
	StatusCreated   Status = "created"
	StatusAnswering Status = "answering"
	StatusVoting    Status = "voting"
	StatusComplete  Status = "complete"
)

// Persona is a named competitor.
type Persona struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rating      int       `json:"elo"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	CreatedAt   time.Time `json:"created_at"`
}

// Round is one judged contest between two personas.
type Round struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	PersonaA  string    `json:"persona_a_id"`
	PersonaB  string    `json:"persona_b_id"`
	Status    Status    `json:"status"`
	WinnerID  *string   `json:"winner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Involves reports whether personaID is one of the round's two competitors.
func (r Round) Involves(personaID string) bool {
	return personaID == r.PersonaA || personaID == r.PersonaB
}

// Opponent returns the other competitor of the round.
func (r Round) Opponent(personaID string) string {
	if personaID == r.PersonaA {
		return r.PersonaB
	}
	return r.PersonaA
}

type Answer struct {
	ID        string `json:"id"`
	RoundID   string `json:"round_id"`
	PersonaID string `json:"persona_id"`
	Content   string `json:"content"`
}

// RoundSummary is a history row with persona names resolved.
type RoundSummary struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Status    Status    `json:"status"`
	PersonaA  string    `json:"model_a"`
	PersonaB  string    `json:"model_b"`
	Winner    *string   `json:"winner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type RoundFilter struct {
	Status Status // empty = all
	Limit  int
}

// Settlement holds both personas after a finalized round.
type Settlement struct {
	Winner Persona
	Loser  Persona
}

// SettleFunc receives the current winner and loser and returns their updated rows.
type SettleFunc func(winner, loser Persona) Settlement

// Store is the durable state behind the orchestrator.
//
// FinalizeRound must check the round status, apply settle and persist the
// round completion together with both persona updates as one atomic unit,
// so that a round is finalized at most once under concurrent callers.
// It returns ErrNotFound, ErrNotVotable, ErrAlreadyComplete or
// ErrInvalidInput (winner not in round) where applicable.
type Store interface {
	ListPersonas(ctx context.Context) ([]Persona, error)
	CreatePersona(ctx context.Context, p Persona) error
	CreateRound(ctx context.Context, r Round) error
	// SaveAnswers stores both answers and moves the round to voting.
	SaveAnswers(ctx context.Context, roundID string, answers []Answer) error
	GetRound(ctx context.Context, id string) (*Round, error)
	ListAnswers(ctx context.Context, roundID string) ([]Answer, error)
	ListRounds(ctx context.Context, f RoundFilter) ([]RoundSummary, error)
	FinalizeRound(ctx context.Context, roundID, winnerID string, settle SettleFunc) (Settlement, error)
}

// Generator produces one persona's answer to a prompt.
type Generator interface {
	Generate(ctx context.Context, instructions, prompt string) (string, error)
}
