package contract

import "github.com/cockroachdb/errors"

// 最小错误分类（哨兵）。包装时使用 errors.Wrap/Wrapf，判定使用 errors.Is。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 参数非法（阶数范围、策略名、单元名等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedInput: 清单不可读或不是合法 UTF-8 文本；按样本排除，不中断扫描。
	ErrMalformedInput = errors.New("malformed input")
	// ErrDuplicateSample: 多个清单映射到同一样本键。
	ErrDuplicateSample = errors.New("duplicate sample")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
