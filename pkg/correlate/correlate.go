// Package correlate 计算两个同阶指纹之间的 Pearson 相关系数。
package correlate

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// Union 返回两侧键的并集，按字节序排序（规范比较域）。
func Union(a, b contract.Fingerprint) []contract.Gram {
	keys := make([]contract.Gram, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Align 在规范比较域上构造对齐向量；缺失键计 0。
func Align(a, b contract.Fingerprint) (keys []contract.Gram, x, y []float64) {
	return align(a, b, Union(a, b))
}

// align 不信任调用方给出的键顺序，先复制并排序再归约。
func align(a, b contract.Fingerprint, keys []contract.Gram) ([]contract.Gram, []float64, []float64) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	x := make([]float64, len(keys))
	y := make([]float64, len(keys))
	for i, k := range keys {
		x[i] = float64(a[k])
		y[i] = float64(b[k])
	}
	return keys, x, y
}

// Fingerprints 计算 Pearson 系数。
// 约束：
// 1) 任一侧为常量向量（含全 0）或对齐长度 < 2 → 未定义，绝不返回 0 代替；
// 2) 两侧向量完全相同 → 恰为 1；
// 3) 结果截断到 [-1, 1]，消除浮点误差越界。
func Fingerprints(a, b contract.Fingerprint) contract.Measure {
	_, x, y := Align(a, b)
	return Pearson(x, y)
}

// Pearson 计算对齐向量的相关系数，规则同 Fingerprints。
func Pearson(x, y []float64) contract.Measure {
	if len(x) != len(y) || len(x) < 2 || constant(x) || constant(y) {
		return contract.Undefined()
	}
	if slices.Equal(x, y) {
		return contract.Defined(1)
	}
	r := stat.Correlation(x, y, nil)
	switch {
	case r > 1:
		r = 1
	case r < -1:
		r = -1
	}
	return contract.Defined(r)
}

func constant(v []float64) bool {
	for _, e := range v[1:] {
		if e != v[0] {
			return false
		}
	}
	return true
}
