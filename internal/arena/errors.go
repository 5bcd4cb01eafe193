package arena

import (
	"errors"
	"fmt"

	"model-arena/internal/gateway"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientPersonas  = errors.New("at least two personas are required")
	ErrGatewayRateLimited    = errors.New("Rate limited - try again in a moment")
	ErrGatewayQuotaExhausted = errors.New("AI credits depleted")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyComplete       = errors.New("round already completed")
	ErrNotVotable            = errors.New("round is not open for voting")
	ErrStore                 = errors.New("store failure")
)

// classified reports whether err already belongs to the taxonomy.
func classified(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrInsufficientPersonas, ErrGatewayRateLimited,
		ErrGatewayQuotaExhausted, ErrNotFound, ErrAlreadyComplete,
		ErrNotVotable, ErrStore,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func storeErr(op string, err error) error {
	if classified(err) {
		return fmt.Errorf("arena: %s: %w", op, err)
	}
	return fmt.Errorf("arena: %s: %w: %w", op, ErrStore, err)
}

func generationErr(persona string, err error) error {
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		return fmt.Errorf("arena: persona %s: %w", persona, ErrGatewayRateLimited)
	case errors.Is(err, gateway.ErrQuotaExhausted):
		return fmt.Errorf("arena: persona %s: %w", persona, ErrGatewayQuotaExhausted)
	}
	return fmt.Errorf("arena: persona %s: %w", persona, err)
}
