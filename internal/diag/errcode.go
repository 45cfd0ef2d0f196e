package diag

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志、指标与 excluded 表，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeMalformed Code = "malformed"
	CodeLayout    Code = "layout"
	CodeDuplicate Code = "duplicate"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类；仅依赖哨兵错误与标准库错误类型。
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, contract.ErrMalformedInput):
		return CodeMalformed
	case errors.Is(err, contract.ErrDuplicateSample):
		return CodeDuplicate
	case errors.Is(err, contract.ErrInvalidInput):
		return CodeLayout
	case errors.Is(err, contract.ErrInvariantViolation), errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
