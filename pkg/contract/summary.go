package contract

// Stats: 单个指标在一个分组内的分布。
// 仅已定义值参与 Mean/Variance/分位数；未定义值只计入 Undefined。
// Count == 0 时数值字段为 NaN；Count == 1 时 Variance 为 0。
type Stats struct {
	Count     int
	Undefined int
	Mean      float64
	Variance  float64
	StdDev    float64
	Min       float64
	Q1        float64
	Median    float64
	Q3        float64
	Max       float64
}

// GroupSummary: (strategy, target_size) 分组的汇总。
type GroupSummary struct {
	Condition   Condition
	Samples     int
	Compression Stats
	Speedup     Stats
	Correlation Stats
}

// Exclusion: 被排除的样本或清单及原因。
type Exclusion struct {
	FileID FileID     `json:"file_id"`
	Sample *SampleKey `json:"sample,omitempty"`
	Code   string     `json:"code"`
	Reason string     `json:"reason"`
}

// RecordRow: 单条比较记录 (sample, condition, n) 的紧凑形式，写入 records.jsonl。
type RecordRow struct {
	Sample        SampleKey `json:"sample"`
	Condition     Condition `json:"condition"`
	N             int       `json:"n"`
	OriginalUnits int       `json:"original_units"`
	TrimmedUnits  int       `json:"trimmed_units"`
	OriginalBytes int       `json:"original_bytes"`
	TrimmedBytes  int       `json:"trimmed_bytes"`
	OriginalGrams int       `json:"original_grams"`
	TrimmedGrams  int       `json:"trimmed_grams"`
	OriginalWins  int       `json:"original_windows"`
	TrimmedWins   int       `json:"trimmed_windows"`
	Correlation   Measure   `json:"correlation"`
}

// Summary: 一次扫描的最终结果。Groups 按 Condition.Less 排序。
type Summary struct {
	Samples  int
	Groups   []GroupSummary
	Excluded []Exclusion
	Records  []RecordRow
}
