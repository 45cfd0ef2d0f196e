package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	clcs "github.com/tamadalab/wasm-wat-trimming/plugins/comparer/lcs"
	cng "github.com/tamadalab/wasm-wat-trimming/plugins/comparer/ngram"
	rfs "github.com/tamadalab/wasm-wat-trimming/plugins/reader/filesystem"
	rtab "github.com/tamadalab/wasm-wat-trimming/plugins/reporter/table"
	twat "github.com/tamadalab/wasm-wat-trimming/plugins/tokenizer/wat"
	wfs "github.com/tamadalab/wasm-wat-trimming/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewTokenizer 工厂签名：接收原样 JSON Options。
type NewTokenizer func(raw json.RawMessage) (contract.Tokenizer, error)

// NewComparer 工厂签名：接收原样 JSON Options。
type NewComparer func(raw json.RawMessage) (contract.Comparer, error)

// NewReporter 工厂签名：接收原样 JSON Options。
type NewReporter func(raw json.RawMessage) (contract.Reporter, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader，支持 .gz/.zst
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts)
	},
}

// Tokenizer 工厂注册表。
var Tokenizer = map[string]NewTokenizer{
	// plain: 去注释、按空白与括号切分
	"plain": func(raw json.RawMessage) (contract.Tokenizer, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return twat.NewPlain(), nil
	},
	// wat: 仅保留指令 token
	"wat": func(raw json.RawMessage) (contract.Tokenizer, error) {
		var opts twat.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return twat.New(&opts), nil
	},
}

func ngramComparer(m cng.Metric) NewComparer {
	return func(raw json.RawMessage) (contract.Comparer, error) {
		var opts cng.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cng.New(m, &opts)
	}
}

// Comparer 工厂注册表：n-gram 度量 + LCS。
var Comparer = map[string]NewComparer{
	string(cng.Cosine):    ngramComparer(cng.Cosine),
	string(cng.Jaccard):   ngramComparer(cng.Jaccard),
	string(cng.Overlap):   ngramComparer(cng.Overlap),
	string(cng.Manhattan): ngramComparer(cng.Manhattan),
	string(cng.KL):        ngramComparer(cng.KL),
	"lcs": func(raw json.RawMessage) (contract.Comparer, error) {
		var opts clcs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return clcs.New(&opts)
	},
}

// Reporter 工厂注册表。
var Reporter = map[string]NewReporter{
	// table: go-pretty 表格（csv/markdown/text/html）
	"table": func(raw json.RawMessage) (contract.Reporter, error) {
		var opts rtab.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rtab.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Names 返回注册表键的有序列表，用于帮助文本与错误提示。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
