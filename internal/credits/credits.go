// Package credits tracks the per-user generation balance.
package credits

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MaxBalance caps every user's balance.
const MaxBalance = 50

var (
	ErrInsufficientCredits = errors.New("no generations left")
	ErrInvalidAmount       = errors.New("amount must be between 1 and 50")
	ErrAlreadyRedeemed     = errors.New("payment already redeemed")
	ErrUnknownUser         = errors.New("unknown user")
)

// Ledger is the gate in front of round creation. Consume is called before a
// round starts and Refund when it could not be played.
type Ledger interface {
	Balance(ctx context.Context, userID int) (int, error)
	Consume(ctx context.Context, userID int) (int, error)
	Refund(ctx context.Context, userID int) (int, error)
	Grant(ctx context.Context, userID, amount int) (int, error)
	// Redeem grants amount once per payment session.
	Redeem(ctx context.Context, userID int, sessionID, packID string, amount int) (int, error)
}

// ValidateAmount rejects grants outside 1..MaxBalance.
func ValidateAmount(amount int) error {
	if amount < 1 || amount > MaxBalance {
		return fmt.Errorf("credits: %d: %w", amount, ErrInvalidAmount)
	}
	return nil
}

// Capped adds amount to balance without exceeding MaxBalance.
func Capped(balance, amount int) int {
	return min(balance+amount, MaxBalance)
}

// MemoryLedger keeps balances in process memory.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[int]int
	redeemed map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: map[int]int{}, redeemed: map[string]string{}}
}

// Open registers a user with a starting balance.
func (l *MemoryLedger) Open(userID, balance int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = min(balance, MaxBalance)
}

// Redemption reports the pack a payment session was redeemed for.
func (l *MemoryLedger) Redemption(sessionID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pack, ok := l.redeemed[sessionID]
	return pack, ok
}

func (l *MemoryLedger) Balance(_ context.Context, userID int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[userID]
	if !ok {
		return 0, fmt.Errorf("credits: user %d: %w", userID, ErrUnknownUser)
	}
	return b, nil
}

func (l *MemoryLedger) Consume(_ context.Context, userID int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[userID]
	if !ok {
		return 0, fmt.Errorf("credits: user %d: %w", userID, ErrUnknownUser)
	}
	if b < 1 {
		return 0, ErrInsufficientCredits
	}
	l.balances[userID] = b - 1
	return b - 1, nil
}

func (l *MemoryLedger) Refund(_ context.Context, userID int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[userID]
	if !ok {
		return 0, fmt.Errorf("credits: user %d: %w", userID, ErrUnknownUser)
	}
	l.balances[userID] = Capped(b, 1)
	return l.balances[userID], nil
}

func (l *MemoryLedger) Grant(_ context.Context, userID, amount int) (int, error) {
	if err := ValidateAmount(amount); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[userID]
	if !ok {
		return 0, fmt.Errorf("credits: user %d: %w", userID, ErrUnknownUser)
	}
	l.balances[userID] = Capped(b, amount)
	return l.balances[userID], nil
}

func (l *MemoryLedger) Redeem(ctx context.Context, userID int, sessionID, packID string, amount int) (int, error) {
	if err := ValidateAmount(amount); err != nil {
		return 0, err
	}
	l.mu.Lock()
	if _, ok := l.redeemed[sessionID]; ok {
		l.mu.Unlock()
		return 0, fmt.Errorf("credits: session %s: %w", sessionID, ErrAlreadyRedeemed)
	}
	if _, ok := l.balances[userID]; !ok {
		l.mu.Unlock()
		return 0, fmt.Errorf("credits: user %d: %w", userID, ErrUnknownUser)
	}
	l.redeemed[sessionID] = packID
	l.mu.Unlock()
	return l.Grant(ctx, userID, amount)
}
