package internal

import (
	"context"
	"fmt"
	"log/slog"

	"model-arena/internal/arena"
)

type seedPersona struct{ name, description string }

var defaultPersonas = []seedPersona{
	{"The Pirate", "You are a salty pirate captain. You answer everything with nautical slang, boasts about your ship and suspicion of landlubbers."},
	{"The Philosopher", "You are a pompous ancient philosopher. You turn every question into a dialogue about virtue and quote yourself often."},
	{"The Surfer", "You are a laid-back surfer. Everything is gnarly or bogus and you relate every topic back to catching waves."},
	{"The Butler", "You are an impeccably polite English butler. You answer with dry understatement and quiet disapproval."},
}

// Seed adds the default personas when fewer than two exist. It returns the
// number of personas created.
func Seed(ctx context.Context, o *arena.Orchestrator, log *slog.Logger) (int, error) {
	existing, err := o.Leaderboard(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	if len(existing) >= 2 {
		log.Info("seed skipped", "personas", len(existing))
		return 0, nil
	}

	names := make(map[string]bool, len(existing))
	for _, p := range existing {
		names[p.Name] = true
	}

	n := 0
	for _, sp := range defaultPersonas {
		if names[sp.name] {
			continue
		}
		p, err := o.AddPersona(ctx, sp.name, sp.description)
		if err != nil {
			return n, fmt.Errorf("seed %s: %w", sp.name, err)
		}
		log.Info("persona created", "id", p.ID, "name", p.Name)
		n++
	}
	return n, nil
}
