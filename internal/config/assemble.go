package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
	"github.com/tamadalab/wasm-wat-trimming/internal/pipeline"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	"github.com/tamadalab/wasm-wat-trimming/pkg/ngram"
	"github.com/tamadalab/wasm-wat-trimming/pkg/registry"
)

// Validate 对最小必要边界做静态校验；失败均包装 ErrInvalidInput。
func Validate(cfg Config) error {
	invalid := func(format string, args ...any) error {
		return errors.Wrapf(contract.ErrInvalidInput, "config: "+format, args...)
	}
	if len(cfg.Inputs) == 0 {
		return invalid("inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return invalid("input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return invalid("'-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return invalid("concurrency must be >= 1")
	}
	if _, err := contract.ParseUnit(effName(cfg.Unit, Defaults().Unit)); err != nil {
		return invalid("%v", err)
	}
	if cfg.Trials < 1 {
		return invalid("trials must be >= 1")
	}
	if cfg.Seed < 0 {
		return invalid("seed must be >= 0")
	}
	if _, err := strategies(cfg.Strategies); err != nil {
		return err
	}
	if len(cfg.TargetSizes) == 0 {
		return invalid("target_sizes empty")
	}
	seen := map[int]bool{}
	// k <= 0 合法：裁剪结果为空
	for _, k := range cfg.TargetSizes {
		if seen[k] {
			return invalid("duplicate target size %d", k)
		}
		seen[k] = true
	}
	if err := ngram.ValidateRange(cfg.MinN, cfg.MaxN); err != nil {
		return invalid("%v", err)
	}
	if cfg.TimingRepeats < 1 {
		return invalid("timing_repeats must be >= 1")
	}
	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" {
		if _, ok := diag.ParseLevel(lv); !ok {
			return invalid("unknown log level %q", lv)
		}
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Tokenizer, d.Tokenizer); registry.Tokenizer[name] == nil {
		return invalid("tokenizer %q not registered", name)
	}
	if name := effName(cfg.Components.Comparer, d.Comparer); registry.Comparer[name] == nil {
		return invalid("comparer %q not registered (have %s)", name, strings.Join(registry.Names(registry.Comparer), ", "))
	}
	if name := effName(cfg.Components.Reporter, d.Reporter); registry.Reporter[name] == nil {
		return invalid("reporter %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。检查点由调用方按 Checkpoint/RunID 打开后注入。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 有效名称
	d := Defaults().Components
	rn := effName(cfg.Components.Reader, d.Reader)
	tn := effName(cfg.Components.Tokenizer, d.Tokenizer)
	cn := effName(cfg.Components.Comparer, d.Comparer)
	pn := effName(cfg.Components.Reporter, d.Reporter)
	wn := effName(cfg.Components.Writer, d.Writer)

	// 构造实例
	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, errors.Wrap(err, "reader options")
	}
	tok, err := registry.Tokenizer[tn](cfg.Options.Tokenizer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, errors.Wrap(err, "tokenizer options")
	}
	cmp, err := registry.Comparer[cn](cfg.Options.Comparer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, errors.Wrap(err, "comparer options")
	}
	rep, err := registry.Reporter[pn](cfg.Options.Reporter)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, errors.Wrap(err, "reporter options")
	}
	wraw := cfg.Options.Writer
	if wn == "fs" && cfg.OutputDir != "" {
		if wraw, err = withOutputDir(wraw, cfg.OutputDir); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, err
		}
	}
	w, err := registry.Writer[wn](wraw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, errors.Wrap(err, "writer options")
	}

	comp := pipeline.Components{Reader: r, Tokenizer: tok, Comparer: cmp, Reporter: rep, Writer: w}
	strats, _ := strategies(cfg.Strategies)
	set := pipeline.Settings{
		Inputs:        cloneStrings(cfg.Inputs),
		Concurrency:   cfg.Concurrency,
		Unit:          contract.Unit(strings.ToLower(effName(cfg.Unit, Defaults().Unit))),
		Trials:        cfg.Trials,
		Seed:          uint64(cfg.Seed),
		Conditions:    contract.Conditions(strats, cfg.TargetSizes),
		MinN:          cfg.MinN,
		MaxN:          cfg.MaxN,
		TimingRepeats: cfg.TimingRepeats,
	}
	return comp, set, nil
}

// RunID 由影响结果的字段派生运行标识（xxhash64，十六进制）。
// 日志、并发度、输出位置与检查点路径不参与：它们不改变样本结果。
// timing_repeats 改变加速比，参与。
func RunID(cfg Config) string {
	d := xxhash.New()
	put := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.WriteString("\x00")
	}
	def := Defaults()
	for _, in := range cfg.Inputs {
		put(in)
	}
	put("|")
	put(strings.ToLower(effName(cfg.Unit, def.Unit)))
	put(strconv.Itoa(cfg.Trials))
	put(strconv.FormatInt(cfg.Seed, 10))
	for _, s := range cfg.Strategies {
		put(strings.ToLower(strings.TrimSpace(s)))
	}
	put("|")
	for _, k := range cfg.TargetSizes {
		put(strconv.Itoa(k))
	}
	put("|")
	put(strconv.Itoa(cfg.MinN))
	put(strconv.Itoa(cfg.MaxN))
	put(strconv.Itoa(cfg.TimingRepeats))
	put(effName(cfg.Components.Reader, def.Components.Reader))
	put(string(compactJSON(cfg.Options.Reader)))
	put(effName(cfg.Components.Tokenizer, def.Components.Tokenizer))
	put(string(compactJSON(cfg.Options.Tokenizer)))
	put(effName(cfg.Components.Comparer, def.Components.Comparer))
	put(string(compactJSON(cfg.Options.Comparer)))
	return fmt.Sprintf("%016x", d.Sum64())
}

func strategies(names []string) ([]contract.Strategy, error) {
	if len(names) == 0 {
		return nil, errors.Wrap(contract.ErrInvalidInput, "config: strategies empty")
	}
	out := make([]contract.Strategy, 0, len(names))
	for _, n := range names {
		s, err := contract.ParseStrategy(n)
		if err != nil {
			return nil, errors.Wrap(err, "config")
		}
		for _, prev := range out {
			if prev == s {
				return nil, errors.Wrapf(contract.ErrInvalidInput, "config: duplicate strategy %q", s)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// withOutputDir 在 writer options 中设置 output_dir，保留其余键。
func withOutputDir(raw json.RawMessage, dir string) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, errors.Wrapf(contract.ErrInvalidInput, "config: writer options: %v", err)
		}
	}
	v, _ := json.Marshal(dir)
	m["output_dir"] = v
	return json.Marshal(m)
}

// compactJSON 去除空白，使等价的 options 得到相同的运行标识。
func compactJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, _ := json.Marshal(v)
	return b
}

func effName(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}
