// Package ngram 从 token 序列提取多阶 n-gram 指纹，并提供 gram 文本文件编解码。
package ngram

import (
	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// 默认阶数范围 [1, 6]。
const (
	DefaultMinN = 1
	DefaultMaxN = 6
)

// Extract 以宽度 n、步长 1 的窗口滑过 s 计数。
// 窗口数为 max(0, len(s)-n+1)；len(s) < n 或 n < 1 时返回空映射。
func Extract(s contract.Sequence, n int) contract.Fingerprint {
	windows := len(s) - n + 1
	if n < 1 || windows <= 0 {
		return contract.Fingerprint{}
	}
	fp := make(contract.Fingerprint, windows)
	for i := 0; i < windows; i++ {
		fp[contract.NewGram(s[i:i+n]...)]++
	}
	return fp
}

// ExtractRange 为 [minN, maxN] 内每个阶数生成指纹。
// 仅当范围非法（minN < 1 或 minN > maxN）时返回 ErrInvalidInput。
func ExtractRange(s contract.Sequence, minN, maxN int) (contract.FingerprintSet, error) {
	if err := ValidateRange(minN, maxN); err != nil {
		return nil, err
	}
	set := make(contract.FingerprintSet, maxN-minN+1)
	for n := minN; n <= maxN; n++ {
		set[n] = Extract(s, n)
	}
	return set, nil
}

// ValidateRange 校验 1 ≤ minN ≤ maxN。
func ValidateRange(minN, maxN int) error {
	if minN < 1 || minN > maxN {
		return errors.Wrapf(contract.ErrInvalidInput, "n-gram range [%d, %d]", minN, maxN)
	}
	return nil
}
