package floor

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for n := Lowest; n <= Highest; n++ {
		if n == 0 {
			continue
		}
		parsed, err := Parse(n.String())
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", n.String(), err)
		}
		if parsed != n {
			t.Errorf("Round trip not as expected.\nExpected: %d\nWas: %d", n, parsed)
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		token string
		want  ID
	}{
		{"1", 1},
		{"999", 999},
		{"B1", -1},
		{"B99", -99},
		{"B21", -21},
		{"337", 337},
		{"01", 1},
		{"B01", -1},
	}
	for _, c := range cases {
		got, err := Parse(c.token)
		if err != nil {
			t.Errorf("Parse(%q) returned error: %v", c.token, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) not as expected.\nExpected: %d\nWas: %d", c.token, c.want, got)
		}
	}
}

func TestParseRejects(t *testing.T) {
	invalid := []string{"", "B", "L4", "B100", "1000", "0", "B0", "000", "B1a", "-1", "12a", " 1", "b1", "B1000"}
	for _, token := range invalid {
		_, err := Parse(token)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) expected ErrInvalid, was %v", token, err)
		}
		if Valid(token) {
			t.Errorf("Valid(%q) expected false", token)
		}
	}
}

func TestStepSkipsZero(t *testing.T) {
	if got := Step(1, -1); got != -1 {
		t.Errorf("Step(1, down) expected B1, was %v", got)
	}
	if got := Step(-1, 1); got != 1 {
		t.Errorf("Step(B1, up) expected 1, was %v", got)
	}
	if got := Step(5, 1); got != 6 {
		t.Errorf("Step(5, up) expected 6, was %v", got)
	}
	if got := Step(-3, -1); got != -4 {
		t.Errorf("Step(B3, down) expected B4, was %v", got)
	}
	if got := Step(7, 0); got != 7 {
		t.Errorf("Step(7, 0) expected 7, was %v", got)
	}
}

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b ID
		want int
	}{
		{1, 5, 4},
		{5, 1, 4},
		{-1, 1, 1},
		{-2, 3, 4},
		{4, 4, 0},
		{-5, -2, 3},
	}
	for _, c := range cases {
		if got := Distance(c.a, c.b); got != c.want {
			t.Errorf("Distance(%v, %v) expected %d, was %d", c.a, c.b, c.want, got)
		}
	}
}

func TestWithin(t *testing.T) {
	if !Within(3, -2, 10) {
		t.Errorf("3 expected within [B2, 10]")
	}
	if Within(11, -2, 10) {
		t.Errorf("11 expected outside [B2, 10]")
	}
	if Within(0, -2, 10) {
		t.Errorf("0 is never a floor")
	}
}
