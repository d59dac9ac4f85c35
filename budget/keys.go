package budget

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// maxKeyAttempts bounds how many generated business keys are tried before
// giving up on a collision streak.
const maxKeyAttempts = 8

// KeyGenerator proposes business keys for records created without one.
type KeyGenerator interface {
	ProtocolNumber() string   // e.g. 04217.118230/2026-07
	CommitmentNumber() string // e.g. 2026NE0042
	PaymentNumber() string    // e.g. 2026NP0042
}

// RandomKeys generates keys from the current year and random digits.
type RandomKeys struct {
	Now func() time.Time
}

func (k RandomKeys) year() int {
	if k.Now == nil {
		return time.Now().Year()
	}
	return k.Now().Year()
}

func (k RandomKeys) ProtocolNumber() string {
	return fmt.Sprintf("%05d.%06d/%d-%02d", rand.IntN(100000), rand.IntN(1000000), k.year(), rand.IntN(100))
}

func (k RandomKeys) CommitmentNumber() string {
	return fmt.Sprintf("%dNE%04d", k.year(), rand.IntN(10000))
}

func (k RandomKeys) PaymentNumber() string {
	return fmt.Sprintf("%dNP%04d", k.year(), rand.IntN(10000))
}

// freshKey draws keys from next until exists reports one as unused.
func freshKey(ctx context.Context, kind Kind, next func() string, exists func(context.Context, string) (bool, error)) (string, error) {
	for range maxKeyAttempts {
		key := next()
		taken, err := exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("check generated %s number: %w", kind, err)
		}
		if !taken {
			return key, nil
		}
	}
	return "", fmt.Errorf("no free %s number after %d attempts", kind, maxKeyAttempts)
}
