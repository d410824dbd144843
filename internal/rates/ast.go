package rates

import "github.com/shopspring/decimal"

// Expr is a node of a parsed rate rule expression.
type Expr interface{ isExpr() }

// Literal is a numeric constant.
type Literal struct {
	Value decimal.Decimal
}

// BinaryOp applies + - * / to two sub-expressions.
type BinaryOp struct {
	Op    byte
	Left  Expr
	Right Expr
}

// UnaryOp applies unary + or - to a sub-expression.
type UnaryOp struct {
	Op      byte
	Operand Expr
}

// Call invokes a builtin (mean, median, normalize) or an exchange lookup.
type Call struct {
	Name string
	Args []Expr
}

// PairRef references another currency pair inside an expression. Wildcard
// sides are substituted from the resolution context before evaluation.
type PairRef struct {
	Pair Pair
}

func (Literal) isExpr()  {}
func (BinaryOp) isExpr() {}
func (UnaryOp) isExpr()  {}
func (Call) isExpr()     {}
func (PairRef) isExpr()  {}

// Rule is one `PAIR = EXPR` assignment of a rule-set.
type Rule struct {
	Pair Pair
	Expr Expr
}
