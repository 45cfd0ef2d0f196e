// Package trim 将单元序列裁剪到目标大小（head / tail / middle / random）。
package trim

import (
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// Trim 按策略保留 min(max(k,0), len(units)) 个单元，保持原有相对顺序。
// 约束：
// 1) head/tail/middle 是 (units, k) 的纯函数；random 是 (units, k, seed) 的纯函数；
// 2) 从不填充，从不重排；
// 3) 返回新切片，不与输入共享底层数组；
// 4) 仅未知策略返回错误（ErrInvalidInput）。
func Trim[T any](units []T, s contract.Strategy, k int, seed uint64) ([]T, error) {
	switch s {
	case contract.StrategyHead:
		return Head(units, k), nil
	case contract.StrategyTail:
		return Tail(units, k), nil
	case contract.StrategyMiddle:
		return Middle(units, k), nil
	case contract.StrategyRandom:
		return Random(units, k, seed), nil
	}
	return nil, errors.Wrapf(contract.ErrInvalidInput, "unknown strategy %q", s)
}

func clampK(k, n int) int {
	if k < 0 {
		return 0
	}
	if k > n {
		return n
	}
	return k
}

// Head 保留前 k 个。
func Head[T any](units []T, k int) []T {
	k = clampK(k, len(units))
	return slices.Clone(units[:k:k])
}

// Tail 保留后 k 个。
func Tail[T any](units []T, k int) []T {
	k = clampK(k, len(units))
	return slices.Clone(units[len(units)-k:])
}

// Middle 从中心对称移除：保留前 ceil(k/2) 与后 floor(k/2) 个，中间为被移除的空洞。
func Middle[T any](units []T, k int) []T {
	n := len(units)
	k = clampK(k, n)
	if k == n {
		return slices.Clone(units)
	}
	head := (k + 1) / 2
	tail := k / 2
	out := make([]T, 0, k)
	out = append(out, units[:head]...)
	return append(out, units[n-tail:]...)
}

// Random 均匀无放回抽取 k 个位置，再按原顺序输出。
// 部分 Fisher–Yates 洗牌只触及前 k 个位置；随机源为 PCG(seed)，与调度顺序无关。
func Random[T any](units []T, k int, seed uint64) []T {
	n := len(units)
	k = clampK(k, n)
	if k == n {
		return slices.Clone(units)
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + r.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	pick := idx[:k]
	slices.Sort(pick)
	out := make([]T, k)
	for i, p := range pick {
		out[i] = units[p]
	}
	return out
}

// DeriveSeed 由基准种子与样本键派生每样本种子（xxhash64）。
// 同一 (base, key) 永远得到同一种子；不依赖进程级随机源。
func DeriveSeed(base uint64, key contract.SampleKey) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatUint(base, 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(key.Algorithm)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(key.Language)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(key.Trial))
	return d.Sum64()
}
