package rates

import (
	"errors"
	"strings"
)

// Wildcard is the pattern side matching any currency in a rule pair.
const Wildcard = "X"

var ErrInvalidPair = errors.New("invalid_pair")

// Pair is an ordered currency pair. Sides are upper-case currency codes or
// the wildcard X when the pair is a rule pattern.
type Pair struct {
	Left  string
	Right string
}

func NewPair(left, right string) Pair {
	return Pair{
		Left:  strings.ToUpper(strings.TrimSpace(left)),
		Right: strings.ToUpper(strings.TrimSpace(right)),
	}
}

// ParsePair parses "LEFT_RIGHT". Exactly one underscore is required.
func ParsePair(raw string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, ErrInvalidPair
	}
	return NewPair(parts[0], parts[1]), nil
}

func (p Pair) String() string { return p.Left + "_" + p.Right }

func (p Pair) Inverse() Pair { return Pair{Left: p.Right, Right: p.Left} }

// Substitute replaces wildcard sides with the contextual pair's sides.
func (p Pair) Substitute(ctx Pair) Pair {
	out := p
	if out.Left == Wildcard {
		out.Left = ctx.Left
	}
	if out.Right == Wildcard {
		out.Right = ctx.Right
	}
	return out
}
