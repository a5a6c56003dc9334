package ffprobe

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrZeroDenominator marks rates such as "0/0" that ffprobe emits when a
// stream has no usable frame rate.
var ErrZeroDenominator = errors.New("zero denominator")

// Rational is an exact frame rate such as 30000/1001.
type Rational struct {
	Num int64
	Den int64
}

// ParseRational parses "num/den" (or a bare integer) without going through a
// float literal. Zero or negative denominators and negative numerators are
// rejected.
func ParseRational(value string) (Rational, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Rational{}, fmt.Errorf("parse rational: empty value")
	}
	if strings.ContainsAny(value, ".eE") {
		return Rational{}, fmt.Errorf("parse rational %q: expected num/den", value)
	}
	if num, den, ok := strings.Cut(value, "/"); ok {
		if strings.TrimSpace(den) == "0" {
			return Rational{}, fmt.Errorf("parse rational %q: %w", value, ErrZeroDenominator)
		}
		value = strings.TrimSpace(num) + "/" + strings.TrimSpace(den)
	}
	r, ok := new(big.Rat).SetString(value)
	if !ok {
		return Rational{}, fmt.Errorf("parse rational %q: malformed", value)
	}
	if r.Sign() < 0 {
		return Rational{}, fmt.Errorf("parse rational %q: negative", value)
	}
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return Rational{}, fmt.Errorf("parse rational %q: out of range", value)
	}
	return Rational{Num: r.Num().Int64(), Den: r.Denom().Int64()}, nil
}

// Float64 returns the rate as a float, or 0 for the zero value.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the rate carries no usable value.
func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
