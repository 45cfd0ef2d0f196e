package contract

import (
	"path"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// FileID: 逻辑清单ID（相对输入根的路径，需规范化，跨平台一致）。
type FileID string

// Sequence: 由单个清单派生的有序单元序列（token 或行）。
// 派生后视为不可变；所有组件只读，需要修改时先复制。
type Sequence []string

// Unit: 实验单元。同一对 (原始, 裁剪) 必须使用同一单元。
type Unit string

const (
	UnitLine  Unit = "line"
	UnitToken Unit = "token"
)

// ParseUnit 解析单元名（大小写不敏感）。
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case UnitLine:
		return UnitLine, nil
	case UnitToken:
		return UnitToken, nil
	}
	return "", errors.Wrapf(ErrInvalidInput, "unknown unit %q", s)
}

// SampleKey: 分析单元 (algorithm, language, trial)。
type SampleKey struct {
	Algorithm string `json:"algorithm"`
	Language  string `json:"language"`
	Trial     int    `json:"trial"`
}

func (k SampleKey) String() string {
	return k.Algorithm + "/" + k.Language + "#" + strconv.Itoa(k.Trial)
}

// Less: 规范顺序 algorithm → language → trial。
func (k SampleKey) Less(o SampleKey) bool {
	if k.Algorithm != o.Algorithm {
		return k.Algorithm < o.Algorithm
	}
	if k.Language != o.Language {
		return k.Language < o.Language
	}
	return k.Trial < o.Trial
}

// ParseSampleKey 从相对路径 <algorithm>/<language>/.../<file> 推导样本键。
// 少于三段的路径不属于任何样本，返回 ErrInvalidInput。
func ParseSampleKey(id FileID, trial int) (SampleKey, error) {
	var parts []string
	for _, p := range strings.Split(path.Clean(string(id)), "/") {
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) < 3 {
		return SampleKey{}, errors.Wrapf(ErrInvalidInput, "file %q is not laid out as <algorithm>/<language>/<file>", id)
	}
	return SampleKey{Algorithm: parts[0], Language: parts[1], Trial: trial}, nil
}
