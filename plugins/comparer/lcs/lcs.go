// Package lcs 提供基于最长公共子序列的相似度比较器。
package lcs

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// Norm 为 LCS 长度的归一化方式。
type Norm string

const (
	NormMin Norm = "min" // lcs / min(|a|, |b|)
	NormMax Norm = "max" // lcs / max(|a|, |b|)
	NormAvg Norm = "avg" // 2·lcs / (|a| + |b|)
)

// Options 为可选配置。
type Options struct {
	// Norm 默认 min。
	Norm Norm `json:"norm"`
	// Limit > 0 时两侧只取前 Limit 个单元。
	Limit int `json:"limit"`
}

// Comparer 实现 contract.Comparer。
type Comparer struct {
	norm  Norm
	limit int
}

var _ contract.Comparer = (*Comparer)(nil)

func New(opts *Options) (*Comparer, error) {
	c := &Comparer{norm: NormMin}
	if opts == nil {
		return c, nil
	}
	switch opts.Norm {
	case "":
	case NormMin, NormMax, NormAvg:
		c.norm = opts.Norm
	default:
		return nil, errors.Wrapf(contract.ErrInvalidInput, "unknown lcs norm %q", opts.Norm)
	}
	if opts.Limit < 0 {
		return nil, errors.Wrapf(contract.ErrInvalidInput, "lcs limit %d", opts.Limit)
	}
	c.limit = opts.Limit
	return c, nil
}

func (c *Comparer) Name() string { return "lcs" }

// Compare 任一侧为空时返回 0。
func (c *Comparer) Compare(ctx context.Context, a, b contract.Sequence) (float64, error) {
	if c.limit > 0 {
		a = a[:min(len(a), c.limit)]
		b = b[:min(len(b), c.limit)]
	}
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	l, err := Length(ctx, a, b)
	if err != nil {
		return 0, err
	}
	switch c.norm {
	case NormMax:
		return float64(l) / float64(max(len(a), len(b))), nil
	case NormAvg:
		return 2 * float64(l) / float64(len(a)+len(b)), nil
	}
	return float64(l) / float64(min(len(a), len(b))), nil
}

// Length 以两行滚动 DP 计算 LCS 长度，内存 O(min(|a|,|b|))。
// 每处理 256 行检查一次 ctx。
func Length(ctx context.Context, a, b contract.Sequence) (int, error) {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return 0, nil
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		ai := a[i-1]
		for j := 1; j <= len(b); j++ {
			switch {
			case ai == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)], nil
}
