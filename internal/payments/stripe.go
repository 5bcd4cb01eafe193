// Package payments verifies completed checkout sessions.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Packs maps purchasable pack ids to the generations they grant.
var Packs = map[string]int{
	"6pack":  6,
	"12pack": 12,
	"30pack": 30,
}

var (
	ErrUnknownPack = errors.New("invalid pack")
	ErrNotPaid     = errors.New("payment not completed")
	ErrWrongOwner  = errors.New("session does not belong to user")
)

// Session is the part of a checkout session we rely on.
type Session struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type Verifier interface {
	Session(ctx context.Context, id string) (*Session, error)
}

// Check validates a session against the pack and user it is redeemed for
// and returns the number of generations to grant.
func Check(s *Session, packID, userID string) (int, error) {
	n, ok := Packs[packID]
	if !ok {
		return 0, fmt.Errorf("payments: %q: %w", packID, ErrUnknownPack)
	}
	if s.PaymentStatus != "paid" {
		return 0, fmt.Errorf("payments: session %s is %q: %w", s.ID, s.PaymentStatus, ErrNotPaid)
	}
	if s.Metadata["user_id"] != userID {
		return 0, fmt.Errorf("payments: session %s: %w", s.ID, ErrWrongOwner)
	}
	return n, nil
}

// Stripe looks sessions up through the Stripe API.
type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	return newStripe(secretKey, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:    &http.Client{Timeout: 15 * time.Second},
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelError},
	}))
}

// NewStripeWithBaseURL creates a client against a custom API URL (for testing).
func NewStripeWithBaseURL(secretKey, baseURL string) *Stripe {
	return newStripe(secretKey, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}))
}

func newStripe(secretKey string, backend stripe.Backend) *Stripe {
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Stripe{api: api}
}

func (s *Stripe) Session(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("payments: session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("payments: session %s: %w", id, err)
	}
	return &Session{
		ID:            cs.ID,
		PaymentStatus: string(cs.PaymentStatus),
		Metadata:      cs.Metadata,
	}, nil
}
