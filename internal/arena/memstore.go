package arena

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore is a Store kept in process memory. A single mutex makes
// every operation atomic, which is enough to honor the FinalizeRound contract.
type MemoryStore struct {
	mu       sync.Mutex
	personas map[string]Persona
	rounds   map[string]Round
	answers  map[string][]Answer
}

func NewMemoryStore(personas ...Persona) *MemoryStore {
	s := &MemoryStore{
		personas: map[string]Persona{},
		rounds:   map[string]Round{},
		answers:  map[string][]Answer{},
	}
	for _, p := range personas {
		s.personas[p.ID] = p
	}
	return s
}

func (s *MemoryStore) ListPersonas(_ context.Context) ([]Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Persona, 0, len(s.personas))
	for _, p := range s.personas {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Persona) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) CreatePersona(_ context.Context, p Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.personas[p.ID]; ok {
		return fmt.Errorf("persona %s exists: %w", p.ID, ErrInvalidInput)
	}
	s.personas[p.ID] = p
	return nil
}

// Persona returns a persona by id.
func (s *MemoryStore) Persona(id string) (Persona, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.personas[id]
	return p, ok
}

func (s *MemoryStore) CreateRound(_ context.Context, r Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.PersonaA == r.PersonaB {
		return fmt.Errorf("round %s: same persona twice: %w", r.ID, ErrInvalidInput)
	}
	s.rounds[r.ID] = r
	return nil
}

func (s *MemoryStore) SaveAnswers(_ context.Context, roundID string, answers []Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[roundID]
	if !ok {
		return fmt.Errorf("round %s: %w", roundID, ErrNotFound)
	}
	if r.Status != StatusAnswering {
		return fmt.Errorf("round %s is %s: %w", roundID, r.Status, ErrNotVotable)
	}
	s.answers[roundID] = append([]Answer(nil), answers...)
	r.Status = StatusVoting
	s.rounds[roundID] = r
	return nil
}

func (s *MemoryStore) GetRound(_ context.Context, id string) (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %s: %w", id, ErrNotFound)
	}
	return &r, nil
}

func (s *MemoryStore) ListAnswers(_ context.Context, roundID string) ([]Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Answer(nil), s.answers[roundID]...), nil
}

func (s *MemoryStore) ListRounds(_ context.Context, f RoundFilter) ([]RoundSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []RoundSummary
	for _, r := range s.rounds {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		sum := RoundSummary{
			ID:        r.ID,
			Prompt:    r.Prompt,
			Status:    r.Status,
			PersonaA:  s.personas[r.PersonaA].Name,
			PersonaB:  s.personas[r.PersonaB].Name,
			CreatedAt: r.CreatedAt,
		}
		if r.WinnerID != nil {
			name := s.personas[*r.WinnerID].Name
			sum.Winner = &name
		}
		out = append(out, sum)
	}
	slices.SortFunc(out, func(a, b RoundSummary) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) FinalizeRound(_ context.Context, roundID, winnerID string, settle SettleFunc) (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[roundID]
	if !ok {
		return Settlement{}, fmt.Errorf("round %s: %w", roundID, ErrNotFound)
	}
	switch r.Status {
	case StatusComplete:
		return Settlement{}, fmt.Errorf("round %s: %w", roundID, ErrAlreadyComplete)
	case StatusVoting:
	default:
		return Settlement{}, fmt.Errorf("round %s is %s: %w", roundID, r.Status, ErrNotVotable)
	}
	if !r.Involves(winnerID) {
		return Settlement{}, fmt.Errorf("persona %s did not play round %s: %w", winnerID, roundID, ErrInvalidInput)
	}

	winner, ok := s.personas[winnerID]
	if !ok {
		return Settlement{}, fmt.Errorf("persona %s: %w", winnerID, ErrNotFound)
	}
	loserID := r.Opponent(winnerID)
	loser, ok := s.personas[loserID]
	if !ok {
		return Settlement{}, fmt.Errorf("persona %s: %w", loserID, ErrNotFound)
	}

	out := settle(winner, loser)
	r.Status = StatusComplete
	r.WinnerID = &winnerID
	s.rounds[roundID] = r
	s.personas[winnerID] = out.Winner
	s.personas[loserID] = out.Loser
	return out, nil
}
