// Package aggregate 将逐样本结果折叠为按 (strategy, target_size) 分组的统计。
//
// 折叠是多重集合并：Fold/Merge 满足交换律与结合律，Finalize 在归约前对每个序列排序，
// 因此结果与样本完成顺序、并发度无关（逐位相等）。
package aggregate

import (
	"math"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// Observation: 单样本在单一条件下的观测。
type Observation struct {
	Condition    contract.Condition `json:"condition"`
	Compression  contract.Measure   `json:"compression"`
	Speedup      contract.Measure   `json:"speedup"`
	Correlations []contract.Measure `json:"correlations"` // 每个阶数 n 一项
}

// Partial: 单样本的完整结果。未完成的样本不会产生 Partial。
type Partial struct {
	Sample       contract.SampleKey   `json:"sample"`
	FileID       contract.FileID      `json:"file_id"`
	Observations []Observation        `json:"observations"`
	Records      []contract.RecordRow `json:"records"`
}

// Aggregator 收集 Partial 与排除项。非并发安全：由流水线的单一合并点持有。
type Aggregator struct {
	conditions []contract.Condition
	samples    map[contract.SampleKey]Partial
	excluded   []contract.Exclusion
}

// New 创建聚合器；conditions 保证即使无样本也输出对应分组。
func New(conditions []contract.Condition) *Aggregator {
	return &Aggregator{conditions: slices.Clone(conditions), samples: map[contract.SampleKey]Partial{}}
}

// Fold 并入一个样本；同一样本键重复并入返回 ErrDuplicateSample。
func (a *Aggregator) Fold(p Partial) error {
	if _, dup := a.samples[p.Sample]; dup {
		return errors.Wrapf(contract.ErrDuplicateSample, "sample %s", p.Sample)
	}
	a.samples[p.Sample] = p
	return nil
}

// Exclude 记录被排除的输入。
func (a *Aggregator) Exclude(e contract.Exclusion) { a.excluded = append(a.excluded, e) }

// Has 报告样本是否已并入。
func (a *Aggregator) Has(k contract.SampleKey) bool {
	_, ok := a.samples[k]
	return ok
}

// Samples 返回已并入样本数。
func (a *Aggregator) Samples() int { return len(a.samples) }

// Excluded 返回已记录的排除项数。
func (a *Aggregator) Excluded() int { return len(a.excluded) }

// Merge 并入另一个聚合器的全部内容；样本键冲突返回 ErrDuplicateSample，a 保持不变。
func (a *Aggregator) Merge(o *Aggregator) error {
	for k := range o.samples {
		if _, dup := a.samples[k]; dup {
			return errors.Wrapf(contract.ErrDuplicateSample, "sample %s", k)
		}
	}
	for k, p := range o.samples {
		a.samples[k] = p
	}
	a.excluded = append(a.excluded, o.excluded...)
	for _, c := range o.conditions {
		if !slices.Contains(a.conditions, c) {
			a.conditions = append(a.conditions, c)
		}
	}
	return nil
}

type series struct {
	samples     int
	compression []contract.Measure
	speedup     []contract.Measure
	correlation []contract.Measure
}

// Finalize 生成汇总；不修改聚合器，可重复调用。
func (a *Aggregator) Finalize() contract.Summary {
	groups := make(map[contract.Condition]*series, len(a.conditions))
	for _, c := range a.conditions {
		groups[c] = &series{}
	}
	var records []contract.RecordRow
	for _, p := range a.samples {
		for _, ob := range p.Observations {
			g := groups[ob.Condition]
			if g == nil {
				g = &series{}
				groups[ob.Condition] = g
			}
			g.samples++
			g.compression = append(g.compression, ob.Compression)
			g.speedup = append(g.speedup, ob.Speedup)
			g.correlation = append(g.correlation, ob.Correlations...)
		}
		records = append(records, p.Records...)
	}

	conds := make([]contract.Condition, 0, len(groups))
	for c := range groups {
		conds = append(conds, c)
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].Less(conds[j]) })

	out := contract.Summary{Samples: len(a.samples)}
	for _, c := range conds {
		g := groups[c]
		out.Groups = append(out.Groups, contract.GroupSummary{
			Condition:   c,
			Samples:     g.samples,
			Compression: Describe(g.compression),
			Speedup:     Describe(g.speedup),
			Correlation: Describe(g.correlation),
		})
	}

	out.Excluded = slices.Clone(a.excluded)
	sort.SliceStable(out.Excluded, func(i, j int) bool { return exclusionLess(out.Excluded[i], out.Excluded[j]) })

	sort.Slice(records, func(i, j int) bool { return recordLess(records[i], records[j]) })
	out.Records = records
	return out
}

// Describe 计算分布统计：未定义值只计数；已定义值排序后再归约。
// Count==0 时数值字段为 NaN；Count==1 时方差为 0；方差为无偏样本方差。
func Describe(ms []contract.Measure) contract.Stats {
	vals := make([]float64, 0, len(ms))
	st := contract.Stats{}
	for _, m := range ms {
		if !m.Defined {
			st.Undefined++
			continue
		}
		vals = append(vals, m.Value)
	}
	st.Count = len(vals)
	if st.Count == 0 {
		nan := math.NaN()
		st.Mean, st.Variance, st.StdDev = nan, nan, nan
		st.Min, st.Q1, st.Median, st.Q3, st.Max = nan, nan, nan, nan, nan
		return st
	}
	slices.Sort(vals)
	if st.Count == 1 {
		st.Mean, st.Variance = vals[0], 0
	} else {
		st.Mean, st.Variance = stat.MeanVariance(vals, nil)
	}
	st.StdDev = math.Sqrt(st.Variance)
	st.Min = vals[0]
	st.Max = vals[len(vals)-1]
	st.Q1 = stat.Quantile(0.25, stat.Empirical, vals, nil)
	st.Median = stat.Quantile(0.5, stat.Empirical, vals, nil)
	st.Q3 = stat.Quantile(0.75, stat.Empirical, vals, nil)
	return st
}

func exclusionLess(a, b contract.Exclusion) bool {
	if a.FileID != b.FileID {
		return a.FileID < b.FileID
	}
	switch {
	case a.Sample == nil && b.Sample != nil:
		return true
	case a.Sample != nil && b.Sample == nil:
		return false
	case a.Sample != nil && *a.Sample != *b.Sample:
		return a.Sample.Less(*b.Sample)
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	return a.Reason < b.Reason
}

func recordLess(a, b contract.RecordRow) bool {
	if a.Sample != b.Sample {
		return a.Sample.Less(b.Sample)
	}
	if a.Condition != b.Condition {
		return a.Condition.Less(b.Condition)
	}
	return a.N < b.N
}
