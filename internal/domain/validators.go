package domain

import "fmt"

// ValidateStake checks that stake is positive and within the configured bounds.
func ValidateStake(stake, minStake, maxStake int64) error {
	if stake <= 0 {
		return ErrOutOfRange(fmt.Sprintf("stake must be positive, got %d", stake))
	}
	if stake < minStake || stake > maxStake {
		return ErrOutOfRange(fmt.Sprintf("stake %d outside [%d, %d]", stake, minStake, maxStake))
	}
	return nil
}

// ValidateClientSeed checks a player-supplied client seed. Seeds are opaque
// strings but must be printable and bounded so they survive the hash recipe
// and the audit log unmodified.
func ValidateClientSeed(seed string) error {
	if seed == "" {
		return ErrBadSelection("client seed must not be empty")
	}
	if len(seed) > 64 {
		return ErrBadSelection(fmt.Sprintf("client seed too long (%d chars, max 64)", len(seed)))
	}
	for _, r := range seed {
		if r < 0x21 || r > 0x7e {
			return ErrBadSelection("client seed must be printable ASCII without spaces")
		}
	}
	return nil
}
