// Package table 使用 go-pretty 将汇总渲染为 CSV / Markdown / 文本 / HTML 表格。
package table

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// Format 为输出格式。
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

// NA 为未定义统计量的渲染文本。
const NA = "NA"

// Options 为可选配置。
type Options struct {
	// Format 默认 csv。
	Format Format `json:"format"`
	// Precision 为小数位数，默认 6。
	Precision *int `json:"precision,omitempty"`
}

// Reporter 实现 contract.Reporter。
type Reporter struct {
	format Format
	prec   int
}

var _ contract.Reporter = (*Reporter)(nil)

func New(opts *Options) (*Reporter, error) {
	r := &Reporter{format: FormatCSV, prec: 6}
	if opts == nil {
		return r, nil
	}
	switch opts.Format {
	case "":
	case FormatCSV, FormatMarkdown, FormatText, FormatHTML:
		r.format = opts.Format
	default:
		return nil, errors.Wrapf(contract.ErrInvalidInput, "unknown table format %q", opts.Format)
	}
	if opts.Precision != nil {
		if *opts.Precision < 0 || *opts.Precision > 17 {
			return nil, errors.Wrapf(contract.ErrInvalidInput, "precision %d", *opts.Precision)
		}
		r.prec = *opts.Precision
	}
	return r, nil
}

// Ext 返回文件扩展名（不含点）。
func (r *Reporter) Ext() string {
	switch r.format {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	case FormatHTML:
		return "html"
	}
	return "csv"
}

var statsHeader = table.Row{"strategy", "target_size", "samples", "count", "undefined", "mean", "variance", "stddev", "min", "q1", "median", "q3", "max"}

// Render 渲染单张表；分组按 Summary 中已排好的顺序输出。
func (r *Reporter) Render(ctx context.Context, t contract.Table, s *contract.Summary) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.Wrap(contract.ErrInvalidInput, "nil summary")
	}
	tw := table.NewWriter()
	switch t {
	case contract.TableCompression, contract.TableSpeedup, contract.TableCorrelation:
		tw.AppendHeader(statsHeader)
		for _, g := range s.Groups {
			st := pick(t, g)
			tw.AppendRow(table.Row{
				string(g.Condition.Strategy), g.Condition.TargetSize, g.Samples, st.Count, st.Undefined,
				r.num(st.Mean), r.num(st.Variance), r.num(st.StdDev),
				r.num(st.Min), r.num(st.Q1), r.num(st.Median), r.num(st.Q3), r.num(st.Max),
			})
		}
	case contract.TableExcluded:
		tw.AppendHeader(table.Row{"file_id", "sample", "code", "reason"})
		for _, e := range s.Excluded {
			sample := ""
			if e.Sample != nil {
				sample = e.Sample.String()
			}
			tw.AppendRow(table.Row{string(e.FileID), sample, e.Code, oneLine(e.Reason)})
		}
	default:
		return nil, errors.Wrapf(contract.ErrInvalidInput, "unknown table %q", t)
	}
	return strings.NewReader(r.render(tw) + "\n"), nil
}

func (r *Reporter) render(tw table.Writer) string {
	switch r.format {
	case FormatMarkdown:
		return tw.RenderMarkdown()
	case FormatText:
		tw.SetStyle(table.StyleLight)
		return tw.Render()
	case FormatHTML:
		return tw.RenderHTML()
	}
	return tw.RenderCSV()
}

func pick(t contract.Table, g contract.GroupSummary) contract.Stats {
	switch t {
	case contract.TableSpeedup:
		return g.Speedup
	case contract.TableCorrelation:
		return g.Correlation
	}
	return g.Compression
}

// num 将 NaN/Inf 渲染为 NA，绝不写成 0。
func (r *Reporter) num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NA
	}
	return strconv.FormatFloat(v, 'f', r.prec, 64)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
