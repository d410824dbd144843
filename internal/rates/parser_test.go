package rates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleSet_Assignments(t *testing.T) {
	rules, err := ParseRuleSet("BTC_USD = coingecko(BTC_USD)\nX_X = 1.5 * binance(X_X)")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, Pair{"BTC", "USD"}, rules[0].Pair)
	call, ok := rules[0].Expr.(Call)
	require.True(t, ok)
	assert.Equal(t, "coingecko", call.Name)
	require.Len(t, call.Args, 1)
	ref, ok := call.Args[0].(PairRef)
	require.True(t, ok)
	assert.Equal(t, Pair{"BTC", "USD"}, ref.Pair)

	assert.Equal(t, Pair{Wildcard, Wildcard}, rules[1].Pair)
	mul, ok := rules[1].Expr.(BinaryOp)
	require.True(t, ok)
	assert.Equal(t, byte('*'), mul.Op)
}

func TestParseRuleSet_UnderscoredSourceName(t *testing.T) {
	rules, err := ParseRuleSet("X_X = primary_exchange(X_X)")
	require.NoError(t, err)
	require.Len(t, rules, 1)

	call, ok := rules[0].Expr.(Call)
	require.True(t, ok)
	assert.Equal(t, "primary_exchange", call.Name)
	require.Len(t, call.Args, 1)
	ref, ok := call.Args[0].(PairRef)
	require.True(t, ok)
	assert.Equal(t, Pair{Wildcard, Wildcard}, ref.Pair)
}

func TestParseRuleSet_SemicolonsAndComments(t *testing.T) {
	rules, err := ParseRuleSet("# default\nBTC_USD = 50000; LTC_USD = 80")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestParseExpression_Precedence(t *testing.T) {
	expr, err := parseExpression("1 + 2 * 3")
	require.NoError(t, err)

	sum, ok := expr.(BinaryOp)
	require.True(t, ok)
	assert.Equal(t, byte('+'), sum.Op)
	_, ok = sum.Left.(Literal)
	assert.True(t, ok)
	product, ok := sum.Right.(BinaryOp)
	require.True(t, ok)
	assert.Equal(t, byte('*'), product.Op)
}

func TestParseExpression_UnaryAndParens(t *testing.T) {
	expr, err := parseExpression("-(1 + 2)")
	require.NoError(t, err)
	neg, ok := expr.(UnaryOp)
	require.True(t, ok)
	assert.Equal(t, byte('-'), neg.Op)
	_, ok = neg.Operand.(BinaryOp)
	assert.True(t, ok)
}

func TestParseExpression_CallWithMixedArgs(t *testing.T) {
	expr, err := parseExpression("mean(coingecko(X_X), binance(X_X), 100)")
	require.NoError(t, err)
	call, ok := expr.(Call)
	require.True(t, ok)
	assert.Equal(t, "mean", call.Name)
	assert.Len(t, call.Args, 3)
}

func TestParseRuleSet_Errors(t *testing.T) {
	_, err := ParseRuleSet("BTC_USD")
	assert.Error(t, err)

	_, err = ParseRuleSet("BTCUSD = 1")
	assert.Error(t, err)

	_, err = ParseRuleSet("BTC_USD = 1 +")
	assert.Error(t, err)

	_, err = ParseRuleSet("BTC_USD = coingecko(")
	assert.Error(t, err)
}
