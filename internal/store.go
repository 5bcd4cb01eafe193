package internal

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"model-arena/internal/arena"
)

// PGStore is the Postgres-backed arena.Store.
type PGStore struct {
	db *pgxpool.Pool
}

var _ arena.Store = (*PGStore)(nil)

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{db: db} }

var personaCols = []string{"id", "name", "description", "rating", "wins", "losses", "created_at"}

func scanPersona(row pgx.Row) (arena.Persona, error) {
	var p arena.Persona
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Rating, &p.Wins, &p.Losses, &p.CreatedAt)
	return p, err
}

func (s *PGStore) ListPersonas(ctx context.Context) ([]arena.Persona, error) {
	rows, err := qQuery(ctx, s.db, psql.Select(personaCols...).From("personas").OrderBy("rating DESC", "name ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []arena.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) CreatePersona(ctx context.Context, p arena.Persona) error {
	_, err := qExec(ctx, s.db, psql.Insert("personas").
		Columns(personaCols...).
		Values(p.ID, p.Name, p.Description, p.Rating, p.Wins, p.Losses, p.CreatedAt))
	return err
}

func (s *PGStore) CreateRound(ctx context.Context, r arena.Round) error {
	_, err := qExec(ctx, s.db, psql.Insert("rounds").
		Columns("id", "prompt", "status", "persona_a_id", "persona_b_id", "created_at").
		Values(r.ID, r.Prompt, string(r.Status), r.PersonaA, r.PersonaB, r.CreatedAt))
	return err
}

// SaveAnswers inserts both answers and flips the round to voting in one
// transaction, so no reader sees a votable round without its answers.
func (s *PGStore) SaveAnswers(ctx context.Context, roundID string, answers []arena.Answer) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := qExec(ctx, tx, psql.Update("rounds").
		Set("status", string(arena.StatusVoting)).
		Where(sq.Eq{"id": roundID, "status": string(arena.StatusAnswering)}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetRound(ctx, roundID); err != nil {
			return err
		}
		return fmt.Errorf("round %s: %w", roundID, arena.ErrNotVotable)
	}

	ins := psql.Insert("answers").Columns("id", "round_id", "persona_id", "content")
	for _, a := range answers {
		ins = ins.Values(a.ID, roundID, a.PersonaID, a.Content)
	}
	if _, err := qExec(ctx, tx, ins); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetRound(ctx context.Context, id string) (*arena.Round, error) {
	return getRound(ctx, s.db, id, false)
}

func getRound(ctx context.Context, db querier, id string, lock bool) (*arena.Round, error) {
	q := psql.Select("id", "prompt", "status", "persona_a_id", "persona_b_id", "winner_id", "created_at").
		From("rounds").Where(sq.Eq{"id": id})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	var r arena.Round
	var status string
	err := qRow(ctx, db, q).Scan(&r.ID, &r.Prompt, &status, &r.PersonaA, &r.PersonaB, &r.WinnerID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("round %s: %w", id, arena.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.Status = arena.Status(status)
	return &r, nil
}

func (s *PGStore) ListAnswers(ctx context.Context, roundID string) ([]arena.Answer, error) {
	rows, err := qQuery(ctx, s.db, psql.Select("id", "round_id", "persona_id", "content").
		From("answers").Where(sq.Eq{"round_id": roundID}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []arena.Answer
	for rows.Next() {
		var a arena.Answer
		if err := rows.Scan(&a.ID, &a.RoundID, &a.PersonaID, &a.Content); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) ListRounds(ctx context.Context, f arena.RoundFilter) ([]arena.RoundSummary, error) {
	q := psql.Select("r.id", "r.prompt", "r.status", "pa.name", "pb.name", "pw.name", "r.created_at").
		From("rounds r").
		Join("personas pa ON pa.id = r.persona_a_id").
		Join("personas pb ON pb.id = r.persona_b_id").
		LeftJoin("personas pw ON pw.id = r.winner_id").
		OrderBy("r.created_at DESC")
	if f.Status != "" {
		q = q.Where(sq.Eq{"r.status": string(f.Status)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	rows, err := qQuery(ctx, s.db, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []arena.RoundSummary
	for rows.Next() {
		var r arena.RoundSummary
		var status string
		if err := rows.Scan(&r.ID, &r.Prompt, &status, &r.PersonaA, &r.PersonaB, &r.Winner, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Status = arena.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FinalizeRound locks the round row for the whole transaction. A second
// finalizer blocks on that lock and then observes the complete status.
func (s *PGStore) FinalizeRound(ctx context.Context, roundID, winnerID string, settle arena.SettleFunc) (arena.Settlement, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return arena.Settlement{}, err
	}
	defer tx.Rollback(ctx)

	r, err := getRound(ctx, tx, roundID, true)
	if err != nil {
		return arena.Settlement{}, err
	}
	switch r.Status {
	case arena.StatusComplete:
		return arena.Settlement{}, fmt.Errorf("round %s: %w", roundID, arena.ErrAlreadyComplete)
	case arena.StatusVoting:
	default:
		return arena.Settlement{}, fmt.Errorf("round %s is %s: %w", roundID, r.Status, arena.ErrNotVotable)
	}
	if !r.Involves(winnerID) {
		return arena.Settlement{}, fmt.Errorf("persona %s did not play round %s: %w", winnerID, roundID, arena.ErrInvalidInput)
	}
	loserID := r.Opponent(winnerID)

	// Lock in id order so two rounds sharing personas cannot deadlock.
	rows, err := qQuery(ctx, tx, psql.Select(personaCols...).From("personas").
		Where(sq.Eq{"id": []string{winnerID, loserID}}).
		OrderBy("id").Suffix("FOR UPDATE"))
	if err != nil {
		return arena.Settlement{}, err
	}
	found := map[string]arena.Persona{}
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			rows.Close()
			return arena.Settlement{}, err
		}
		found[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return arena.Settlement{}, err
	}
	winner, ok := found[winnerID]
	if !ok {
		return arena.Settlement{}, fmt.Errorf("persona %s: %w", winnerID, arena.ErrNotFound)
	}
	loser, ok := found[loserID]
	if !ok {
		return arena.Settlement{}, fmt.Errorf("persona %s: %w", loserID, arena.ErrNotFound)
	}

	out := settle(winner, loser)

	if _, err := qExec(ctx, tx, psql.Update("rounds").
		Set("status", string(arena.StatusComplete)).
		Set("winner_id", winnerID).
		Where(sq.Eq{"id": roundID})); err != nil {
		return arena.Settlement{}, err
	}
	for _, p := range []arena.Persona{out.Winner, out.Loser} {
		if _, err := qExec(ctx, tx, psql.Update("personas").
			Set("rating", p.Rating).
			Set("wins", p.Wins).
			Set("losses", p.Losses).
			Where(sq.Eq{"id": p.ID})); err != nil {
			return arena.Settlement{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return arena.Settlement{}, err
	}
	return out, nil
}
