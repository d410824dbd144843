package rates

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/money"
	"github.com/smallbiznis/coinflow/internal/observability/metrics"
	"go.uber.org/zap"
)

// MaxDepth bounds rule-chain recursion. A cyclic rule-set resolves to no
// rate instead of looping.
const MaxDepth = 8

var ErrNoRate = errors.New("no_rate")

// Engine resolves currency pair rates through a rule-set and the exchange
// source registry.
type Engine struct {
	registry *Registry
	log      *zap.Logger
}

func NewEngine(registry *Registry, log *zap.Logger) *Engine {
	return &Engine{
		registry: registry,
		log:      log.Named("rates.engine"),
	}
}

// Resolve evaluates the rule-set for pair and returns the rate together with
// the literal pair the winning rule resolved. ErrNoRate is returned when no
// rule matches or every matched branch failed to produce a number.
func (e *Engine) Resolve(ctx context.Context, ruleSet string, pair Pair) (decimal.Decimal, Pair, error) {
	rules, err := ParseRuleSet(ruleSet)
	if err != nil {
		e.log.Warn("rule-set parse failed", zap.String("pair", pair.String()), zap.Error(err))
		metrics.Core().IncRateResolution(metrics.ResolutionOutcomeUnresolved)
		return decimal.Zero, Pair{}, ErrNoRate
	}

	v, used := e.resolvePair(ctx, rules, pair, 0)
	if !v.ok {
		metrics.Core().IncRateResolution(metrics.ResolutionOutcomeUnresolved)
		return decimal.Zero, Pair{}, ErrNoRate
	}
	metrics.Core().IncRateResolution(metrics.ResolutionOutcomeResolved)
	return v.d, used, nil
}

// value carries a decimal together with a resolution flag; failed branches
// propagate as !ok the way NaN would.
type value struct {
	d  decimal.Decimal
	ok bool
}

func number(d decimal.Decimal) value { return value{d: d, ok: true} }

var noValue = value{}

func (e *Engine) resolvePair(ctx context.Context, rules []Rule, pair Pair, depth int) (value, Pair) {
	if depth > MaxDepth {
		return noValue, Pair{}
	}

	type candidate struct {
		rule    Rule
		ctxPair Pair
		invert  bool
	}

	match := func(pick func(Rule) (Pair, bool)) *candidate {
		for _, r := range rules {
			if ctxPair, ok := pick(r); ok {
				inverted := ctxPair != pair
				return &candidate{rule: r, ctxPair: ctxPair, invert: inverted}
			}
		}
		return nil
	}

	inverse := pair.Inverse()
	priorities := []func(Rule) (Pair, bool){
		func(r Rule) (Pair, bool) { return pair, r.Pair == pair },
		func(r Rule) (Pair, bool) { return inverse, r.Pair == inverse },
		func(r Rule) (Pair, bool) {
			return pair, r.Pair == Pair{pair.Left, Wildcard} || r.Pair == Pair{Wildcard, pair.Right}
		},
		func(r Rule) (Pair, bool) {
			return inverse, r.Pair == Pair{inverse.Left, Wildcard} || r.Pair == Pair{Wildcard, inverse.Right}
		},
		func(r Rule) (Pair, bool) { return pair, r.Pair == Pair{Wildcard, Wildcard} },
	}

	for _, pick := range priorities {
		c := match(pick)
		if c == nil {
			continue
		}
		v := e.eval(ctx, rules, c.rule.Expr, c.ctxPair, depth)
		if c.invert {
			v = invert(v)
		}
		return v, c.ctxPair
	}
	return noValue, Pair{}
}

func invert(v value) value {
	if !v.ok || v.d.IsZero() {
		return noValue
	}
	return number(decimal.NewFromInt(1).Div(v.d))
}

func (e *Engine) eval(ctx context.Context, rules []Rule, expr Expr, ctxPair Pair, depth int) value {
	switch node := expr.(type) {
	case Literal:
		return number(node.Value)

	case UnaryOp:
		v := e.eval(ctx, rules, node.Operand, ctxPair, depth)
		if !v.ok {
			return noValue
		}
		if node.Op == '-' {
			return number(v.d.Neg())
		}
		return v

	case BinaryOp:
		left := e.eval(ctx, rules, node.Left, ctxPair, depth)
		right := e.eval(ctx, rules, node.Right, ctxPair, depth)
		if !left.ok || !right.ok {
			return noValue
		}
		switch node.Op {
		case '+':
			return number(left.d.Add(right.d))
		case '-':
			return number(left.d.Sub(right.d))
		case '*':
			return number(left.d.Mul(right.d))
		case '/':
			if right.d.IsZero() {
				return noValue
			}
			return number(left.d.Div(right.d))
		}
		return noValue

	case PairRef:
		target := node.Pair.Substitute(ctxPair)
		if target.Left == target.Right {
			return number(decimal.NewFromInt(1))
		}
		v, _ := e.resolvePair(ctx, rules, target, depth+1)
		return v

	case Call:
		return e.evalCall(ctx, rules, node, ctxPair, depth)
	}
	return noValue
}

func (e *Engine) evalCall(ctx context.Context, rules []Rule, call Call, ctxPair Pair, depth int) value {
	switch call.Name {
	case "mean":
		return mean(e.evalArgs(ctx, rules, call.Args, ctxPair, depth))
	case "median":
		return median(e.evalArgs(ctx, rules, call.Args, ctxPair, depth))
	case "normalize":
		if len(call.Args) != 2 {
			return noValue
		}
		v := e.eval(ctx, rules, call.Args[0], ctxPair, depth)
		places := e.eval(ctx, rules, call.Args[1], ctxPair, depth)
		if !v.ok || !places.ok {
			return noValue
		}
		return number(money.Normalize(v.d, int32(places.d.IntPart())))
	}

	// Exchange lookup, or a nested rule resolution when the name is not a
	// registered source.
	if len(call.Args) != 1 {
		return noValue
	}
	ref, ok := call.Args[0].(PairRef)
	if !ok {
		return noValue
	}
	target := ref.Pair.Substitute(ctxPair)
	if target.Left == target.Right {
		return number(decimal.NewFromInt(1))
	}
	if e.registry != nil && e.registry.Has(call.Name) {
		quote, ok := e.registry.Quote(ctx, call.Name, target)
		if !ok {
			return noValue
		}
		return number(quote)
	}
	v, _ := e.resolvePair(ctx, rules, target, depth+1)
	return v
}

func (e *Engine) evalArgs(ctx context.Context, rules []Rule, args []Expr, ctxPair Pair, depth int) []value {
	out := make([]value, 0, len(args))
	for _, arg := range args {
		out = append(out, e.eval(ctx, rules, arg, ctxPair, depth))
	}
	return out
}

// mean averages the arguments that resolved; arguments that failed are
// ignored. All-failed yields no value.
func mean(values []value) value {
	sum := decimal.Zero
	n := 0
	for _, v := range values {
		if !v.ok {
			continue
		}
		sum = sum.Add(v.d)
		n++
	}
	if n == 0 {
		return noValue
	}
	return number(sum.Div(decimal.NewFromInt(int64(n))))
}

func median(values []value) value {
	resolved := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if v.ok {
			resolved = append(resolved, v.d)
		}
	}
	if len(resolved) == 0 {
		return noValue
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].LessThan(resolved[j]) })
	mid := len(resolved) / 2
	if len(resolved)%2 == 1 {
		return number(resolved[mid])
	}
	return number(resolved[mid-1].Add(resolved[mid]).Div(decimal.NewFromInt(2)))
}
