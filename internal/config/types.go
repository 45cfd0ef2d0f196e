package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// Unit: line | token。
	Unit string `json:"unit"`
	// Trials: 每个清单展开的样本数。
	Trials int `json:"trials"`
	// Seed: 基准种子（>=0）。覆盖层中 -1 表示未设置。
	Seed        int64    `json:"seed"`
	Strategies  []string `json:"strategies"`
	TargetSizes []int    `json:"target_sizes"`
	MinN        int      `json:"min_n"`
	MaxN        int      `json:"max_n"`
	// TimingRepeats: 每次计时重复调用比较器的次数（取最小值）。
	TimingRepeats int `json:"timing_repeats"`
	// Checkpoint: SQLite 检查点路径；空表示不启用续跑。
	Checkpoint string `json:"checkpoint"`
	// OutputDir: 结果目录；非空时注入 fs writer 的 output_dir。
	OutputDir string  `json:"output_dir"`
	Logging   Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Tokenizer string `json:"tokenizer"`
	Comparer  string `json:"comparer"`
	Reporter  string `json:"reporter"`
	Writer    string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader,omitempty"`
	Tokenizer json.RawMessage `json:"tokenizer,omitempty"`
	Comparer  json.RawMessage `json:"comparer,omitempty"`
	Reporter  json.RawMessage `json:"reporter,omitempty"`
	Writer    json.RawMessage `json:"writer,omitempty"`
}
