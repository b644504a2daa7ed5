package orders

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// IDGenerator issues order numbers. exists reports whether a candidate is
// already taken.
type IDGenerator interface {
	Next(ctx context.Context, exists func(id int64) (bool, error)) (int64, error)
}

// RandomIDGenerator draws 6-digit numbers and retries on collision.
type RandomIDGenerator struct {
	MaxAttempts int
}

func NewRandomIDGenerator() *RandomIDGenerator {
	return &RandomIDGenerator{MaxAttempts: 50}
}

func (g *RandomIDGenerator) Next(ctx context.Context, exists func(id int64) (bool, error)) (int64, error) {
	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		id, err := sixDigits()
		if err != nil {
			return 0, err
		}
		taken, err := exists(id)
		if err != nil {
			return 0, fmt.Errorf("failed to check order id %d: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no free order id after %d attempts", g.MaxAttempts)
}

// CodeGenerator produces one-time signing codes.
type CodeGenerator interface {
	Code() (string, error)
}

type RandomCodes struct{}

func (RandomCodes) Code() (string, error) {
	n, err := sixDigits()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n), nil
}

func sixDigits() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random number: %w", err)
	}
	return n.Int64() + 100000, nil
}
