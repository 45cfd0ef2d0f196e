package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	"github.com/tamadalab/wasm-wat-trimming/pkg/ngram"
)

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "WATTRIM_"

// DefaultTargetSizes 为默认目标大小（单元数）。
var DefaultTargetSizes = []int{500, 1000, 3000, 5000}

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Inputs 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	strategies := make([]string, 0, 4)
	for _, s := range contract.Strategies() {
		strategies = append(strategies, string(s))
	}
	return Config{
		Concurrency:   1,
		Unit:          string(contract.UnitLine),
		Trials:        10,
		Seed:          0,
		Strategies:    strategies,
		TargetSizes:   append([]int(nil), DefaultTargetSizes...),
		MinN:          ngram.DefaultMinN,
		MaxN:          ngram.DefaultMaxN,
		TimingRepeats: 3,
		OutputDir:     "results",
		Logging:       Logging{Level: "info"},
		Components: Components{
			Reader:    "fs",
			Tokenizer: "wat",
			Comparer:  "cosine",
			Reporter:  "table",
			Writer:    "fs",
		},
	}
}

// Empty 返回“全部未设置”的覆盖层（Seed 以 -1 表示未设置）。
func Empty() Config { return Config{Seed: -1} }

// Load 从文件路径或原始字节解析 Config（严格拒绝未知字段）。
// .yaml/.yml 文件或非 JSON 对象开头的原始字节按 YAML 解析，先转为 JSON 再严格解码。
func Load(path string, raw []byte) (Config, error) {
	cfg := Empty()
	var b []byte
	switch {
	case len(raw) > 0:
		b = raw
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		b = data
	default:
		return cfg, errors.New("no config source provided")
	}
	if isYAML(path, b) {
		j, err := yamlToJSON(b)
		if err != nil {
			return cfg, errors.Wrap(err, "config: yaml")
		}
		b = j
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, errors.Wrap(err, "config: decode")
	}
	return cfg, nil
}

func isYAML(path string, b []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	t := bytes.TrimSpace(b)
	return len(t) > 0 && t[0] != '{'
}

// yamlToJSON 将 YAML 文档转为 JSON，保留嵌套的 options 子树。
func yamlToJSON(b []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	v, err := normalizeYAML(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// normalizeYAML 将非字符串键的映射转为字符串键（JSON 仅支持字符串键）。
func normalizeYAML(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			n, err := normalizeYAML(e)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks := fmt.Sprint(k)
			n, err := normalizeYAML(e)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		for i, e := range t {
			n, err := normalizeYAML(e)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	}
	return v, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/切片/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if strings.TrimSpace(over.Unit) != "" {
		out.Unit = strings.TrimSpace(over.Unit)
	}
	if over.Trials != 0 {
		out.Trials = over.Trials
	}
	// Seed 的 0 具有语义，需要显式可覆盖；-1 视为未覆盖。
	if over.Seed >= 0 {
		out.Seed = over.Seed
	}
	if len(over.Strategies) > 0 {
		out.Strategies = cloneStrings(over.Strategies)
	}
	if len(over.TargetSizes) > 0 {
		out.TargetSizes = append([]int(nil), over.TargetSizes...)
	}
	if over.MinN != 0 {
		out.MinN = over.MinN
	}
	if over.MaxN != 0 {
		out.MaxN = over.MaxN
	}
	if over.TimingRepeats != 0 {
		out.TimingRepeats = over.TimingRepeats
	}
	if strings.TrimSpace(over.Checkpoint) != "" {
		out.Checkpoint = strings.TrimSpace(over.Checkpoint)
	}
	if strings.TrimSpace(over.OutputDir) != "" {
		out.OutputDir = strings.TrimSpace(over.OutputDir)
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Tokenizer != "" {
		out.Components.Tokenizer = over.Components.Tokenizer
	}
	if over.Components.Comparer != "" {
		out.Components.Comparer = over.Components.Comparer
	}
	if over.Components.Reporter != "" {
		out.Components.Reporter = over.Components.Reporter
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Tokenizer) > 0 {
		out.Options.Tokenizer = cloneRaw(over.Options.Tokenizer)
	}
	if len(over.Options.Comparer) > 0 {
		out.Options.Comparer = cloneRaw(over.Options.Comparer)
	}
	if len(over.Options.Reporter) > 0 {
		out.Options.Reporter = cloneRaw(over.Options.Reporter)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 WATTRIM_；未知键忽略；数值键格式错误返回 ErrInvalidInput。
// 支持：INPUTS, CONCURRENCY, UNIT, TRIALS, SEED, STRATEGIES, TARGET_SIZES, MIN_N, MAX_N,
// TIMING_REPEATS, CHECKPOINT, OUTPUT_DIR, LOG_LEVEL, COMPONENTS_* 以及 OPTIONS_<COMPONENT>_JSON。
func EnvOverlay(environ []string) (Config, error) {
	over := Empty()
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		var err error
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CONCURRENCY":
			over.Concurrency, err = atoi(val)
		case "UNIT":
			over.Unit = val
		case "TRIALS":
			over.Trials, err = atoi(val)
		case "SEED":
			over.Seed, err = strconv.ParseInt(val, 10, 64)
		case "STRATEGIES":
			over.Strategies = splitComma(val)
		case "TARGET_SIZES":
			over.TargetSizes, err = atoiList(val)
		case "MIN_N":
			over.MinN, err = atoi(val)
		case "MAX_N":
			over.MaxN, err = atoi(val)
		case "TIMING_REPEATS":
			over.TimingRepeats, err = atoi(val)
		case "CHECKPOINT":
			over.Checkpoint = val
		case "OUTPUT_DIR":
			over.OutputDir = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_TOKENIZER":
			over.Components.Tokenizer = val
		case "COMPONENTS_COMPARER":
			over.Components.Comparer = val
		case "COMPONENTS_REPORTER":
			over.Components.Reporter = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_TOKENIZER_JSON":
			over.Options.Tokenizer = json.RawMessage(val)
		case "OPTIONS_COMPARER_JSON":
			over.Options.Comparer = json.RawMessage(val)
		case "OPTIONS_REPORTER_JSON":
			over.Options.Reporter = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		}
		if err != nil {
			return over, errors.Wrapf(contract.ErrInvalidInput, "env %s%s=%q", EnvPrefix, key, val)
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func atoiList(s string) ([]int, error) {
	var out []int
	for _, p := range splitComma(s) {
		n, err := atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
