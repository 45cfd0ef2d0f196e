package config

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 输入根为 ./listings（<algorithm>/<language>/.../*.wat 布局）；
// - 结果写入 ./results，检查点位于 ./results/checkpoint.db；
// - 组件名采用仓库内置实现，选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Inputs = []string{"listings"}
	cfg.Checkpoint = "results/checkpoint.db"
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "target"],
  "include": ["**/*.wat", "**/*.wat.gz", "**/*.wat.zst"],
  "decompress": true
}`)
	cfg.Options.Tokenizer = json.RawMessage(`{"extra_ops": []}`)
	cfg.Options.Comparer = json.RawMessage(`{"min_n": 1, "max_n": 6}`)
	cfg.Options.Reporter = json.RawMessage(`{"format": "csv", "precision": 6}`)
	cfg.Options.Writer = json.RawMessage(`{
  "atomic": true,
  "flat": false,
  "gzip": false,
  "buf_size": 65536
}`)
	return cfg
}

// TemplateYAML 将模板渲染为 YAML（键按字母序）。
func TemplateYAML(cfg Config) ([]byte, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "template: encode")
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "template: decode")
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "template: yaml")
	}
	return append([]byte("# wattrim configuration (CLI > WATTRIM_* env > this file > defaults)\n"), out...), nil
}
