package floor

import (
	"errors"
	"fmt"
	"strconv"
)

// ID identifies a floor. Positive values are regular floors 1..999,
// negative values are basement floors B1..B99. There is no floor 0.
type ID int

const (
	Lowest  ID = -99
	Highest ID = 999

	maxDigits = 3
)

var ErrInvalid = errors.New("invalid floor")

// Parse decodes a floor token: "B" followed by 1-3 digits (1..99) or
// 1-3 digits (1..999).
func Parse(token string) (ID, error) {
	basement := len(token) > 0 && token[0] == 'B'
	digits := token
	if basement {
		digits = token[1:]
	}
	if len(digits) == 0 || len(digits) > maxDigits {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, token)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, token)
		}
	}

	n, _ := strconv.Atoi(digits)
	if basement {
		n = -n
	}
	id := ID(n)
	if !id.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, token)
	}
	return id, nil
}

// Valid reports whether token is a well-formed floor.
func Valid(token string) bool {
	_, err := Parse(token)
	return err == nil
}

func (f ID) Valid() bool {
	return (f >= Lowest && f <= -1) || (f >= 1 && f <= Highest)
}

func (f ID) String() string {
	if f < 0 {
		return "B" + strconv.Itoa(int(-f))
	}
	return strconv.Itoa(int(f))
}

// Step moves one floor up (dir > 0) or down (dir < 0), skipping the
// missing floor 0.
func Step(f ID, dir int) ID {
	switch {
	case dir > 0:
		if f == -1 {
			return 1
		}
		return f + 1
	case dir < 0:
		if f == 1 {
			return -1
		}
		return f - 1
	}
	return f
}

// Distance returns how many single-floor steps separate a and b.
func Distance(a, b ID) int {
	d := int(a - b)
	if d < 0 {
		d = -d
	}
	if (a < 0) != (b < 0) {
		d--
	}
	return d
}

// Within reports whether f lies in [lowest, highest].
func Within(f, lowest, highest ID) bool {
	return f.Valid() && f >= lowest && f <= highest
}
