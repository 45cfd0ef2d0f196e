// Package ngram 提供基于 n-gram 指纹的相似度比较器。
// 每个阶数单独计算相似度，结果取 [MinN, MaxN] 上的算术平均。
package ngram

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	ng "github.com/tamadalab/wasm-wat-trimming/pkg/ngram"
)

// Metric 为逐阶相似度函数名。
type Metric string

const (
	Cosine    Metric = "cosine"
	Jaccard   Metric = "jaccard"
	Overlap   Metric = "overlap"
	Manhattan Metric = "manhattan"
	KL        Metric = "kl"
)

// Metrics 返回全部支持的度量（固定顺序）。
func Metrics() []Metric { return []Metric{Cosine, Jaccard, Overlap, Manhattan, KL} }

// klEps 为 KL 平滑项，避免 log(0)。
const klEps = 1e-10

// Options 为比较器可选配置。
type Options struct {
	MinN int `json:"min_n"`
	MaxN int `json:"max_n"`
}

// Comparer 实现 contract.Comparer。
type Comparer struct {
	metric     Metric
	minN, maxN int
	fn         func(a, b contract.Fingerprint) float64
}

var _ contract.Comparer = (*Comparer)(nil)

// New 按度量名创建比较器；未知度量或非法阶数区间返回 ErrInvalidInput。
func New(m Metric, opts *Options) (*Comparer, error) {
	c := &Comparer{metric: m, minN: ng.DefaultMinN, maxN: ng.DefaultMaxN}
	if opts != nil {
		if opts.MinN > 0 {
			c.minN = opts.MinN
		}
		if opts.MaxN > 0 {
			c.maxN = opts.MaxN
		}
	}
	if err := ng.ValidateRange(c.minN, c.maxN); err != nil {
		return nil, err
	}
	switch m {
	case Cosine:
		c.fn = cosine
	case Jaccard:
		c.fn = jaccard
	case Overlap:
		c.fn = overlap
	case Manhattan:
		c.fn = manhattan
	case KL:
		c.fn = klSimilarity
	default:
		return nil, errors.Wrapf(contract.ErrInvalidInput, "unknown metric %q", m)
	}
	return c, nil
}

func (c *Comparer) Name() string { return string(c.metric) }

// Compare 返回各阶相似度的平均值，落在 [0, 1]。
func (c *Comparer) Compare(ctx context.Context, a, b contract.Sequence) (float64, error) {
	sum := 0.0
	for n := c.minN; n <= c.maxN; n++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		sum += c.fn(ng.Extract(a, n), ng.Extract(b, n))
	}
	return sum / float64(c.maxN-c.minN+1), nil
}

// Score 直接比较两个同阶指纹。
func (c *Comparer) Score(a, b contract.Fingerprint) float64 { return c.fn(a, b) }

// cosine 以整数累加点积与范数，结果与 map 迭代顺序无关。
func cosine(a, b contract.Fingerprint) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb int64
	for k, va := range a {
		na += int64(va) * int64(va)
		if vb, ok := b[k]; ok {
			dot += int64(va) * int64(vb)
		}
	}
	for _, vb := range b {
		nb += int64(vb) * int64(vb)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(dot) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
}

func intersect(a, b contract.Fingerprint) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// jaccard 按键集合计算；两侧皆空记 0。
func jaccard(a, b contract.Fingerprint) float64 {
	inter := intersect(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func overlap(a, b contract.Fingerprint) float64 {
	m := min(len(a), len(b))
	if m == 0 {
		return 0
	}
	return float64(intersect(a, b)) / float64(m)
}

// manhattan: 1 - L1 / (Σa + Σb)。
func manhattan(a, b contract.Fingerprint) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dist := 0
	for k, va := range a {
		d := va - b[k]
		if d < 0 {
			d = -d
		}
		dist += d
	}
	for k, vb := range b {
		if _, ok := a[k]; !ok {
			dist += vb
		}
	}
	total := a.Total() + b.Total()
	if total == 0 {
		return 0
	}
	return 1 - float64(dist)/float64(total)
}

func distribution(f contract.Fingerprint) map[contract.Gram]float64 {
	total := float64(f.Total())
	p := make(map[contract.Gram]float64, len(f))
	for k, v := range f {
		p[k] = float64(v) / total
	}
	return p
}

// klDivergence 在键并集上按规范顺序累加，结果与 map 迭代顺序无关。
func klDivergence(p, q map[contract.Gram]float64, keys []contract.Gram) float64 {
	d := 0.0
	for _, k := range keys {
		pk := p[k] + klEps
		qk := q[k] + klEps
		d += pk * math.Log(pk/qk)
	}
	return d
}

// klSimilarity: 对称 KL 映射为 1/(1+D)；任一侧为空记 0。
func klSimilarity(a, b contract.Fingerprint) float64 {
	if a.Total() == 0 || b.Total() == 0 {
		return 0
	}
	keys := unionKeys(a, b)
	p, q := distribution(a), distribution(b)
	return 1 / (1 + klDivergence(p, q, keys) + klDivergence(q, p, keys))
}

func unionKeys(a, b contract.Fingerprint) []contract.Gram {
	u := make(contract.Fingerprint, len(a)+len(b))
	for k := range a {
		u[k] = 1
	}
	for k := range b {
		u[k] = 1
	}
	return u.Keys()
}
