package arena

import (
	"cmp"
	"slices"
)

// pickTwo draws two distinct personas uniformly without replacement.
func (o *Orchestrator) pickTwo(ps []Persona) (Persona, Persona) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(ps)
	i := o.rng.IntN(n)
	j := o.rng.IntN(n - 1)
	if j >= i {
		j++
	}
	return ps[i], ps[j]
}

func sortByRating(ps []Persona) {
	slices.SortStableFunc(ps, func(a, b Persona) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

func sortByLabel(rs []Response) {
	slices.SortFunc(rs, func(a, b Response) int { return cmp.Compare(a.Label, b.Label) })
}
