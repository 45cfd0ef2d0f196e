package pipeline

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/internal/aggregate"
	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	"github.com/tamadalab/wasm-wat-trimming/pkg/correlate"
	"github.com/tamadalab/wasm-wat-trimming/pkg/ngram"
	"github.com/tamadalab/wasm-wat-trimming/pkg/trim"
)

// runWorkers 启动 Concurrency 个 worker 消费 tasks，全部退出后返回。
func runWorkers(ctx context.Context, comp Components, set Settings, logger *diag.Logger, tasks <-chan task, results chan<- outcome) {
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for t := range tasks {
			// 取消后仅排空，不再计算
			if ctx.Err() != nil {
				continue
			}
			start := time.Now()
			p, err := Evaluate(ctx, comp, set, logger, t.key, t.fileID, t.text)
			o := outcome{key: t.key, fileID: t.fileID, dur: time.Since(start), err: err}
			if err == nil {
				o.partial = &p
			}
			// results 由合并点持续排空，发送不会永久阻塞
			results <- o
		}
	}
	wg.Add(set.Concurrency)
	for i := 0; i < set.Concurrency; i++ {
		go worker()
	}
	wg.Wait()
}

// Evaluate 端到端计算单个样本：派生单元序列，对每个条件裁剪、提取指纹、计算相关并计时。
// 裁剪与压缩率按实验单元计；指纹与计时比较始终作用于保留文本的 token。
// 纯函数式：不读写共享状态；样本种子仅由 (set.Seed, key) 决定。
// 条件之间检查 ctx，取消时返回 ctx.Err() 且不产生部分结果。
func Evaluate(ctx context.Context, comp Components, set Settings, logger *diag.Logger, key contract.SampleKey, fid contract.FileID, text string) (aggregate.Partial, error) {
	sample := key.String()
	timer := logger.StartWith("worker", "evaluate", string(fid), sample)

	units := Units(text, set.Unit, comp.Tokenizer)
	tokens := Tokens(units, set.Unit, comp.Tokenizer)
	orig, err := ngram.ExtractRange(tokens, set.MinN, set.MaxN)
	if err != nil {
		return aggregate.Partial{}, err
	}
	origBytes := byteSize(units)
	baseline, err := timeCompare(ctx, comp.Comparer, tokens, set.TimingRepeats)
	if err != nil {
		fail(logger, "comparer", "compare failed", err, string(fid), sample)
		return aggregate.Partial{}, errors.Wrapf(err, "compare %s", comp.Comparer.Name())
	}
	seed := trim.DeriveSeed(set.Seed, key)
	logger.DebugStart("worker", "units", string(fid), sample, map[string]string{
		"unit":   string(set.Unit),
		"units":  strconv.Itoa(len(units)),
		"tokens": strconv.Itoa(len(tokens)),
		"seed":   strconv.FormatUint(seed, 10),
	})

	p := aggregate.Partial{Sample: key, FileID: fid}
	for _, c := range set.Conditions {
		if err := ctx.Err(); err != nil {
			return aggregate.Partial{}, err
		}
		kept, err := trim.Trim(units, c.Strategy, c.TargetSize, seed)
		if err != nil {
			return aggregate.Partial{}, err
		}
		trimmed := contract.Sequence(kept)
		kt := Tokens(trimmed, set.Unit, comp.Tokenizer)
		fps, err := ngram.ExtractRange(kt, set.MinN, set.MaxN)
		if err != nil {
			return aggregate.Partial{}, err
		}
		elapsed, err := timeCompare(ctx, comp.Comparer, kt, set.TimingRepeats)
		if err != nil {
			fail(logger, "comparer", "compare failed", err, string(fid), sample)
			return aggregate.Partial{}, errors.Wrapf(err, "compare %s", comp.Comparer.Name())
		}
		ob := aggregate.Observation{
			Condition:   c,
			Compression: contract.Ratio(float64(len(trimmed)), float64(len(units))),
			Speedup:     contract.Ratio(float64(elapsed), float64(baseline)),
		}
		trimmedBytes := byteSize(trimmed)
		for n := set.MinN; n <= set.MaxN; n++ {
			m := correlate.Fingerprints(orig[n], fps[n])
			ob.Correlations = append(ob.Correlations, m)
			p.Records = append(p.Records, contract.RecordRow{
				Sample:        key,
				Condition:     c,
				N:             n,
				OriginalUnits: len(units),
				TrimmedUnits:  len(trimmed),
				OriginalBytes: origBytes,
				TrimmedBytes:  trimmedBytes,
				OriginalGrams: len(orig[n]),
				TrimmedGrams:  len(fps[n]),
				OriginalWins:  orig[n].Total(),
				TrimmedWins:   fps[n].Total(),
				Correlation:   m,
			})
		}
		p.Observations = append(p.Observations, ob)
	}
	timer.Finish("evaluate", int64(len(p.Records)))
	diag.IncOp("worker", "finish", "success")
	return p, nil
}

// timeCompare 仅在不透明比较调用外侧计时（self-pair），重复 repeats 次取最小值。
func timeCompare(ctx context.Context, c contract.Comparer, s contract.Sequence, repeats int) (time.Duration, error) {
	best := time.Duration(-1)
	for i := 0; i < repeats; i++ {
		t0 := time.Now()
		if _, err := c.Compare(ctx, s, s); err != nil {
			return 0, err
		}
		d := time.Since(t0)
		if best < 0 || d < best {
			best = d
		}
	}
	diag.ObserveDuration("comparer", "compare", best.Milliseconds())
	return best, nil
}

// Units 按实验单元派生序列：line 为原始行（CRLF 归一，末尾换行不产生空单元）；token 为分词结果。
func Units(text string, u contract.Unit, tok contract.Tokenizer) contract.Sequence {
	if u == contract.UnitToken {
		return tok.Tokenize(text)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return contract.Sequence{}
	}
	return contract.Sequence(strings.Split(text, "\n"))
}

// Tokens 返回单元序列对应的 token：token 单元原样返回；line 单元以换行拼回文本后分词。
func Tokens(units contract.Sequence, u contract.Unit, tok contract.Tokenizer) contract.Sequence {
	if u == contract.UnitToken {
		return units
	}
	return tok.Tokenize(strings.Join(units, "\n"))
}

// byteSize 为单元以换行连接后的字节数。
func byteSize(s contract.Sequence) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) - 1
	for _, u := range s {
		n += len(u)
	}
	return n
}
