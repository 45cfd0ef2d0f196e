package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tamadalab/wasm-wat-trimming/internal/aggregate"
	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract/mock_contract"
	cng "github.com/tamadalab/wasm-wat-trimming/plugins/comparer/ngram"
	"github.com/tamadalab/wasm-wat-trimming/plugins/reporter/table"
	"github.com/tamadalab/wasm-wat-trimming/plugins/tokenizer/wat"
)

// 通用桩件 ----------------------------------------------------

// memReader 按 FileID 字典序遍历内存中的清单。
type memReader map[string][]byte

func (m memReader) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, io.ReadCloser) error) error {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(contract.FileID(id), io.NopCloser(bytes.NewReader(m[id]))); err != nil {
			return err
		}
	}
	return nil
}

type memWriter struct {
	mu  sync.Mutex
	out map[string]string
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		w.out = map[string]string{}
	}
	w.out[string(id)] = string(b)
	return nil
}

// memStore 为内存检查点；afterSave 在每次保存成功后回调。
type memStore struct {
	mu        sync.Mutex
	saved     []aggregate.Partial
	saveErr   error
	afterSave func(n int)
}

func (s *memStore) Load(ctx context.Context) ([]aggregate.Partial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]aggregate.Partial(nil), s.saved...), nil
}

func (s *memStore) Save(ctx context.Context, p aggregate.Partial) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	s.saved = append(s.saved, p)
	n := len(s.saved)
	s.mu.Unlock()
	if s.afterSave != nil {
		s.afterSave(n)
	}
	return nil
}

// listing 生成确定性的类 WAT 清单。
func listing(seed, lines int) []byte {
	ops := []string{"local.get 0", "local.get 1", "i32.add", "i32.const 1", "i32.sub", "br_if 0", "call 2", "end", "block", "loop", "i32.lt_s", "drop"}
	var b strings.Builder
	b.WriteString("(module\n  (func $f (param i32 i32) (result i32)\n")
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "    %s\n", ops[(i*i+seed*7+i/3)%len(ops)])
	}
	b.WriteString("  )\n)\n")
	return []byte(b.String())
}

func corpus() memReader {
	return memReader{
		"bubsort/c/main.wat":        listing(1, 60),
		"bubsort/rust/main.wat":     listing(2, 45),
		"fizzbuzz/go/main.wat":      listing(3, 80),
		"fizzbuzz/go/out/other.wat": listing(4, 30), // 与上一项同一样本键
		"collatz/java/Main.wat":     listing(5, 12),
		"top.wat":                   listing(6, 10), // 路径段不足
		"bad/c/broken.wat":          {0xff, 0xfe, 'x'},
	}
}

func components(t *testing.T, r contract.Reader) (Components, *memWriter) {
	t.Helper()
	cmp, err := cng.New(cng.Cosine, nil)
	require.NoError(t, err)
	rep, err := table.New(nil)
	require.NoError(t, err)
	w := &memWriter{}
	return Components{Reader: r, Tokenizer: wat.New(nil), Comparer: cmp, Reporter: rep, Writer: w}, w
}

func settings(concurrency int) Settings {
	return Settings{
		Inputs:        []string{"mem"},
		Concurrency:   concurrency,
		Unit:          contract.UnitLine,
		Trials:        2,
		Seed:          42,
		Conditions:    contract.Conditions(contract.Strategies(), []int{5, 20}),
		MinN:          1,
		MaxN:          3,
		TimingRepeats: 1,
	}
}

// digest 汇总中与计时无关的部分（压缩率、相关系数、记录、排除项）。
func digest(s contract.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "samples=%d\n", s.Samples)
	for _, g := range s.Groups {
		fmt.Fprintf(&b, "%s n=%d comp=%+v corr=%+v speedup.count+undef=%d\n", g.Condition, g.Samples, g.Compression, g.Correlation, g.Speedup.Count+g.Speedup.Undefined)
	}
	for _, r := range s.Records {
		fmt.Fprintf(&b, "%+v\n", r)
	}
	for _, e := range s.Excluded {
		fmt.Fprintf(&b, "%s %v %s\n", e.FileID, e.Sample, e.Code)
	}
	return b.String()
}

// UT-PIP-01: 完整扫描：样本展开、排除项、结果表与记录边车
func TestRunSweep(t *testing.T) {
	comp, w := components(t, corpus())
	res, err := Run(context.Background(), comp, settings(3), diag.Nop())
	require.NoError(t, err)

	s := res.Summary
	// 4 个有效清单 × 2 trials
	assert.Equal(t, 8, s.Samples)
	require.Len(t, s.Groups, 8)
	for _, g := range s.Groups {
		assert.Equal(t, 8, g.Samples, g.Condition.String())
		assert.Equal(t, 8, g.Compression.Count)
	}

	codes := map[string][]string{}
	for _, e := range s.Excluded {
		codes[e.Code] = append(codes[e.Code], string(e.FileID))
	}
	assert.Equal(t, []string{"bad/c/broken.wat"}, codes["malformed"])
	assert.Equal(t, []string{"top.wat"}, codes["layout"])
	assert.Equal(t, []string{"fizzbuzz/go/out/other.wat", "fizzbuzz/go/out/other.wat"}, codes["duplicate"])

	for _, name := range []string{"compression.csv", "speedup.csv", "correlation.csv", "excluded.csv", "records.jsonl"} {
		assert.Contains(t, w.out, name)
	}
	assert.True(t, strings.HasPrefix(w.out["compression.csv"], "strategy,target_size,samples,count,undefined,"))
	// 8 样本 × 8 条件 × 3 阶
	sc := bufio.NewScanner(strings.NewReader(w.out["records.jsonl"]))
	lines := 0
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 8*8*3, lines)
}

// collatz 清单 12 行 + 4 行外壳 = 16 单元：size 20 → 全量保留，压缩率 1，相关系数 1
func TestRunFullKeepIsIdentity(t *testing.T) {
	comp, _ := components(t, memReader{"collatz/java/Main.wat": listing(5, 12)})
	set := settings(1)
	set.Trials = 1
	set.SkipArtifacts = true
	res, err := Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	for _, r := range res.Summary.Records {
		assert.Equal(t, 16, r.OriginalUnits)
		if r.Condition.TargetSize == 20 {
			assert.Equal(t, 16, r.TrimmedUnits)
			assert.Equal(t, r.OriginalBytes, r.TrimmedBytes)
			// 全量保留：要么恰为 1，要么（各 gram 计数相同）未定义
			if r.N == 1 {
				require.True(t, r.Correlation.Defined)
			}
			if r.Correlation.Defined {
				assert.Equal(t, 1.0, r.Correlation.Value)
			}
		} else {
			assert.Equal(t, 5, r.TrimmedUnits)
		}
	}
	for _, g := range res.Summary.Groups {
		if g.Condition.TargetSize == 20 {
			assert.Equal(t, 1.0, g.Compression.Mean)
		} else {
			assert.InDelta(t, 5.0/16, g.Compression.Mean, 1e-12)
		}
	}
}

// UT-PIP-02: 并发度 1/4/8 结果一致（计时字段除外）
func TestRunConcurrencyInvariant(t *testing.T) {
	var want string
	for _, c := range []int{1, 4, 8} {
		comp, _ := components(t, corpus())
		res, err := Run(context.Background(), comp, settings(c), nil)
		require.NoError(t, err)
		got := digest(res.Summary)
		if want == "" {
			want = got
			continue
		}
		require.Equal(t, want, got, "concurrency=%d", c)
	}
}

// UT-PIP-03: 比较器报错 → 样本排除，扫描继续
func TestRunComparerFailureExcludesSample(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock_contract.NewMockComparer(ctrl)
	boom := errors.New("comparer exploded")
	m.EXPECT().Name().Return("mock").AnyTimes()
	m.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, a, b contract.Sequence) (float64, error) {
			// 比较作用于 token：rust 清单 45 行指令，外壳不产生 token
			if len(a) == 45 {
				return 0, boom
			}
			return 1, nil
		}).AnyTimes()

	comp, _ := components(t, corpus())
	comp.Comparer = m
	res, err := Run(context.Background(), comp, settings(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Summary.Samples)
	var failed []string
	for _, e := range res.Summary.Excluded {
		if e.Sample != nil && e.Code == "unknown" {
			failed = append(failed, e.Sample.String())
			assert.Contains(t, e.Reason, "comparer exploded")
		}
	}
	assert.Equal(t, []string{"bubsort/rust#1", "bubsort/rust#2"}, failed)
}

// UT-PIP-04: 中断 → 部分结果 + ctx.Err()；同一检查点续跑 → 与不中断运行一致
func TestRunCancelAndResume(t *testing.T) {
	comp, _ := components(t, corpus())
	full, err := Run(context.Background(), comp, settings(2), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &memStore{afterSave: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	comp, w := components(t, corpus())
	comp.Store = store
	partial, err := Run(ctx, comp, settings(2), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, partial.Summary.Samples, 3)
	assert.Len(t, store.saved, partial.Summary.Samples)
	assert.Empty(t, w.out, "no artifacts on interruption")

	store.afterSave = nil
	comp, _ = components(t, corpus())
	comp.Store = store
	resumed, err := Run(context.Background(), comp, settings(4), nil)
	require.NoError(t, err)
	assert.Equal(t, partial.Summary.Samples, resumed.Resumed)
	assert.Equal(t, digest(full.Summary), digest(resumed.Summary))
	assert.Len(t, store.saved, 8)
}

// 检查点写入失败为致命错误
func TestRunCheckpointSaveFails(t *testing.T) {
	comp, w := components(t, corpus())
	comp.Store = &memStore{saveErr: errors.New("disk full")}
	_, err := Run(context.Background(), comp, settings(2), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint save")
	assert.Empty(t, w.out)
}

type failReader struct{ err error }

func (f failReader) Iterate(context.Context, []string, func(contract.FileID, io.ReadCloser) error) error {
	return f.err
}

func TestRunReaderFailure(t *testing.T) {
	comp, _ := components(t, failReader{err: errors.New("root missing")})
	_, err := Run(context.Background(), comp, settings(1), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reader iterate")
}

func TestSanity(t *testing.T) {
	comp, _ := components(t, corpus())
	cases := map[string]func(*Settings, *Components){
		"no comparer":   func(s *Settings, c *Components) { c.Comparer = nil },
		"no writer":     func(s *Settings, c *Components) { c.Writer = nil },
		"zero trials":   func(s *Settings, c *Components) { s.Trials = 0 },
		"no conditions": func(s *Settings, c *Components) { s.Conditions = nil },
		"bad unit":      func(s *Settings, c *Components) { s.Unit = "byte" },
		"bad range":     func(s *Settings, c *Components) { s.MinN = 3; s.MaxN = 2 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			s, c := settings(1), comp
			mut(&s, &c)
			_, err := Run(context.Background(), c, s, nil)
			assert.Error(t, err)
		})
	}
	s, err := sanity(comp, Settings{Trials: 1, Unit: contract.UnitToken, Conditions: settings(1).Conditions, MinN: 1, MaxN: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Concurrency)
	assert.Equal(t, 1, s.TimingRepeats)
}

func TestUnits(t *testing.T) {
	tok := wat.NewPlain()
	assert.Equal(t, contract.Sequence{"a", "b c", ""}, Units("a\r\nb c\n\n", contract.UnitLine, tok))
	assert.Equal(t, contract.Sequence{"a", "b"}, Units("a\nb", contract.UnitLine, tok))
	assert.Empty(t, Units("", contract.UnitLine, tok))
	assert.Empty(t, Units("\n", contract.UnitLine, tok))
	assert.Equal(t, contract.Sequence{"i32.add", "end"}, Units("(i32.add) ;; x\nend", contract.UnitToken, tok))
	assert.Equal(t, 5, byteSize(contract.Sequence{"ab", "cd"}))
	assert.Equal(t, 0, byteSize(nil))
}

// [A,B,A,B,A] 以 token 为单元裁剪到 1：n=2 的相关系数未定义，压缩率 1/5
func TestEvaluateZeroVariance(t *testing.T) {
	comp, _ := components(t, memReader{})
	comp.Tokenizer = wat.NewPlain()
	set := Settings{Unit: contract.UnitToken, Trials: 1, MinN: 2, MaxN: 2, TimingRepeats: 1,
		Conditions: []contract.Condition{{Strategy: contract.StrategyHead, TargetSize: 1}}}
	key := contract.SampleKey{Algorithm: "a", Language: "b", Trial: 1}
	p, err := Evaluate(context.Background(), comp, set, nil, key, "a/b/x.wat", "A B A B A")
	require.NoError(t, err)
	require.Len(t, p.Observations, 1)
	ob := p.Observations[0]
	assert.Equal(t, 0.2, ob.Compression.Value)
	require.Len(t, ob.Correlations, 1)
	assert.False(t, ob.Correlations[0].Defined)
	require.Len(t, p.Records, 1)
	assert.Equal(t, 4, p.Records[0].OriginalWins)
	assert.Equal(t, 0, p.Records[0].TrimmedWins)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Evaluate(ctx, comp, set, nil, key, "a/b/x.wat", "A B A B A")
	assert.ErrorIs(t, err, context.Canceled)
}

// 以行为单元：裁剪按行计，指纹与比较只看分词后的指令
func TestEvaluateLineUnitsTokenized(t *testing.T) {
	src := "(func $f (param i32 i32) (result i32)\n" +
		"  local.get 0 ;; lhs\n" +
		"  local.get 1\n" +
		"  i32.add (; sum ;)\n" +
		"  local.get 0\n" +
		"  local.get 1\n" +
		"  i32.add)"
	var seen []contract.Sequence
	ctrl := gomock.NewController(t)
	m := mock_contract.NewMockComparer(ctrl)
	m.EXPECT().Name().Return("mock").AnyTimes()
	m.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, a, b contract.Sequence) (float64, error) {
			seen = append(seen, a)
			return 1, nil
		}).Times(2)

	comp, _ := components(t, memReader{})
	comp.Comparer = m
	set := Settings{Unit: contract.UnitLine, Trials: 1, MinN: 1, MaxN: 1, TimingRepeats: 1,
		Conditions: []contract.Condition{{Strategy: contract.StrategyHead, TargetSize: 4}}}
	key := contract.SampleKey{Algorithm: "add", Language: "wat", Trial: 1}
	p, err := Evaluate(context.Background(), comp, set, nil, key, "add/wat/f.wat", src)
	require.NoError(t, err)

	require.Len(t, p.Records, 1)
	r := p.Records[0]
	assert.Equal(t, 7, r.OriginalUnits)
	assert.Equal(t, 4, r.TrimmedUnits)
	assert.Equal(t, 2, r.OriginalGrams)
	assert.Equal(t, 6, r.OriginalWins)
	assert.Equal(t, 2, r.TrimmedGrams)
	assert.Equal(t, 3, r.TrimmedWins)
	assert.InDelta(t, 4.0/7, p.Observations[0].Compression.Value, 1e-12)

	require.Len(t, seen, 2)
	assert.Equal(t, contract.Sequence{"local.get", "local.get", "i32.add", "local.get", "local.get", "i32.add"}, seen[0])
	assert.Equal(t, contract.Sequence{"local.get", "local.get", "i32.add"}, seen[1])
}

// 目标大小 <= 0：保留为空，压缩率 0，所有阶的相关系数未定义
func TestRunZeroTargetSize(t *testing.T) {
	comp, w := components(t, memReader{"bubsort/c/main.wat": listing(1, 60)})
	set := settings(2)
	set.Conditions = contract.Conditions(contract.Strategies(), []int{-1, 0})
	res, err := Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Len(t, res.Summary.Groups, 8)
	for _, g := range res.Summary.Groups {
		assert.Equal(t, 2, g.Compression.Count, g.Condition.String())
		assert.Equal(t, 0.0, g.Compression.Mean)
		assert.Equal(t, 0, g.Correlation.Count)
		assert.Equal(t, 2*3, g.Correlation.Undefined)
	}
	for _, r := range res.Summary.Records {
		assert.Equal(t, 0, r.TrimmedUnits)
		assert.Equal(t, 0, r.TrimmedWins)
		assert.False(t, r.Correlation.Defined)
	}
	assert.Contains(t, w.out["correlation.csv"], "head,0,")
}
