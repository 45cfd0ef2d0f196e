package lcs

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

func seq(s string) contract.Sequence { return contract.Sequence(strings.Fields(s)) }

// UT-LCS-01: 已知长度
func TestLength(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"A B C B D A B", "B D C A B A", 4},
		{"a b c", "a b c", 3},
		{"a b c", "x y z", 0},
		{"", "a", 0},
		{"a", "b a", 1},
	}
	for _, tc := range cases {
		got, err := Length(context.Background(), seq(tc.a), seq(tc.b))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%q vs %q", tc.a, tc.b)
	}
}

// UT-LCS-02: 归一化方式
func TestNorms(t *testing.T) {
	a := seq("a b c d")
	b := seq("a c")
	for _, tc := range []struct {
		norm Norm
		want float64
	}{
		{NormMin, 1},
		{NormMax, 0.5},
		{NormAvg, 4.0 / 6},
		{"", 1},
	} {
		c, err := New(&Options{Norm: tc.norm})
		require.NoError(t, err)
		got, err := c.Compare(context.Background(), a, b)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got, 1e-12, "norm %q", tc.norm)
	}
	c, _ := New(nil)
	got, _ := c.Compare(context.Background(), seq(""), b)
	assert.Equal(t, 0.0, got)
	assert.Equal(t, "lcs", c.Name())
}

func TestLimit(t *testing.T) {
	c, err := New(&Options{Limit: 2})
	require.NoError(t, err)
	got, err := c.Compare(context.Background(), seq("a b x x x"), seq("a b y y y"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(&Options{Norm: "median"})
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
	_, err = New(&Options{Limit: -1})
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	long := make(contract.Sequence, 1024)
	for i := range long {
		long[i] = "x"
	}
	_, err := Length(ctx, long, long)
	assert.ErrorIs(t, err, context.Canceled)

	// 每 256 行检查一次：不足 256 行的输入直接算完
	short := long[:255]
	n, err := Length(ctx, short, short)
	require.NoError(t, err)
	assert.Equal(t, 255, n)
}
