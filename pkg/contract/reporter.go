package contract

import (
	"context"
	"io"
)

// Table: 汇总输出表。
type Table string

const (
	TableCompression Table = "compression"
	TableSpeedup     Table = "speedup"
	TableCorrelation Table = "correlation"
	TableExcluded    Table = "excluded"
)

// Tables 返回全部输出表（固定顺序）。
func Tables() []Table {
	return []Table{TableCompression, TableSpeedup, TableCorrelation, TableExcluded}
}

// Reporter: 将 Summary 渲染为表格字节流。
// 约束：
//  1. 每个 Table 一行对应一个 (strategy, target_size) 分组（excluded 表除外）；
//  2. 未定义统计量渲染为 NA，不得写成 0；
//  3. 不做 I/O，落盘交给 Writer。
type Reporter interface {
	Ext() string
	Render(ctx context.Context, t Table, s *Summary) (io.Reader, error)
}
