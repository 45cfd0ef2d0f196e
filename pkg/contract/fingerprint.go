package contract

import (
	"slices"
	"strings"
)

// gramSep 为 n-gram 内部 token 分隔符；清单 token 中不会出现该控制字符。
const gramSep = "\x1f"

// Gram: n 个连续 token 组成的有序元组，以 gramSep 拼接为可比较的键。
// 两个 Gram 相等当且仅当每个位置的 token 完全相等。
type Gram string

// NewGram 由 token 元组构造 Gram。
func NewGram(tokens ...string) Gram { return Gram(strings.Join(tokens, gramSep)) }

// Tokens 还原 token 元组。
func (g Gram) Tokens() []string { return strings.Split(string(g), gramSep) }

// Order 返回元组长度 n。
func (g Gram) Order() int { return strings.Count(string(g), gramSep) + 1 }

// String 以空格拼接，便于人读与落盘。
func (g Gram) String() string { return strings.ReplaceAll(string(g), gramSep, " ") }

// Fingerprint: 单一阶数 n 的 n-gram 计数映射。
// 约束：计数之和 == max(0, len(s)-n+1)；len(s) < n 时为空映射。
type Fingerprint map[Gram]int

// Total 返回窗口总数（计数之和）。
func (f Fingerprint) Total() int {
	t := 0
	for _, c := range f {
		t += c
	}
	return t
}

// Keys 返回按字节序排序的键；数值归约前必须使用该规范顺序，禁止依赖 map 迭代顺序。
func (f Fingerprint) Keys() []Gram {
	keys := make([]Gram, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// FingerprintSet: 阶数 → Fingerprint。
type FingerprintSet map[int]Fingerprint

// Orders 返回升序阶数列表。
func (s FingerprintSet) Orders() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
