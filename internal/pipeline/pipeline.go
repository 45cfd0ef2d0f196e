package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/internal/aggregate"
	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	"github.com/tamadalab/wasm-wat-trimming/pkg/ngram"
)

// - 单点并发：仅此层管理并发与背压；原子组件均为同步、无内部并发。
// - 单一合并点：调用方 goroutine 独占 Aggregator 与检查点写入；worker 之间无共享可变状态。
// - 首错取消：致命错误（检查点、内部不变量）记录首错并 cancel；排空后返回该错误。
// - 样本级失败（输入损坏、比较器报错）记为排除项，不中断扫描。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Tokenizer contract.Tokenizer
	Comparer  contract.Comparer
	Reporter  contract.Reporter
	Writer    contract.Writer
	// Store 可选：已完成样本的持久化，用于中断后续跑。
	Store Store
}

// Store: 检查点存储（由 internal/checkpoint 实现）。
type Store interface {
	Load(ctx context.Context) ([]aggregate.Partial, error)
	Save(ctx context.Context, p aggregate.Partial) error
}

// Settings 运行期配置。
type Settings struct {
	Inputs      []string
	Concurrency int
	Unit        contract.Unit
	// Trials: 每个清单展开的独立样本数（trial 从 1 开始）。
	Trials int
	// Seed: 基准种子；每样本种子由 trim.DeriveSeed 派生。
	Seed       uint64
	Conditions []contract.Condition
	MinN       int
	MaxN       int
	// TimingRepeats: 每次计时重复调用比较器的次数，取最小值。
	TimingRepeats int
	// SkipArtifacts: 只返回汇总，不写结果表（子命令与测试使用）。
	SkipArtifacts bool
}

// Result 为一次运行的产出。
type Result struct {
	Summary contract.Summary
	// Resumed: 从检查点恢复、未重新计算的样本数。
	Resumed int
}

// task 是无状态的样本描述：同一清单的各 trial 共享只读文本。
type task struct {
	key    contract.SampleKey
	fileID contract.FileID
	text   string
}

// outcome 由生产者（排除项）与 worker（样本结果/失败）发往合并点。
type outcome struct {
	partial *aggregate.Partial
	excl    *contract.Exclusion
	key     contract.SampleKey
	fileID  contract.FileID
	dur     time.Duration
	err     error
}

// Run 执行完整扫描：Reader → 样本展开 → workers(裁剪/指纹/相关/计时) → 合并 → Reporter → Writer。
// ctx 取消时返回已完成样本的部分汇总与 ctx.Err()；未完成的样本被丢弃，从不半折叠。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	set, err := sanity(comp, set)
	if err != nil {
		return Result{}, errors.Wrap(err, "sanity")
	}
	runStart := time.Now()
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(set.Concurrency, comp.Comparer.Name())
	}

	agg := aggregate.New(set.Conditions)
	done := map[contract.SampleKey]struct{}{}
	resumed := 0
	if comp.Store != nil {
		ctimer := logger.Start("checkpoint", "load")
		ps, err := comp.Store.Load(ctx)
		if err != nil {
			fail(logger, "checkpoint", "load failed", err, "", "")
			return Result{}, errors.Wrap(err, "checkpoint load")
		}
		for _, p := range ps {
			if err := agg.Fold(p); err != nil {
				return Result{}, errors.Wrap(contract.ErrInvariantViolation, err.Error())
			}
			done[p.Sample] = struct{}{}
		}
		resumed = len(ps)
		ctimer.Finish("load", int64(resumed))
		diag.IncOp("checkpoint", "finish", "success")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 有界通道：默认 2×并发度，形成自然背压
	tasks := make(chan task, set.Concurrency*2)
	results := make(chan outcome, set.Concurrency*2)
	prodErr := make(chan error, 1)

	go func() {
		defer close(tasks)
		prodErr <- produce(runCtx, comp, set, logger, done, tasks, results)
	}()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		runWorkers(runCtx, comp, set, logger, tasks, results)
	}()
	// 生产者与 workers 都结束后关闭 results
	go func() {
		<-workersDone
		close(results)
	}()

	var firstErr error
	for o := range results {
		switch {
		case o.excl != nil:
			agg.Exclude(*o.excl)
			logger.Warn("pipeline", o.excl.Code, o.excl.Reason, string(o.excl.FileID))
			diag.IncOp("pipeline", "exclude", o.excl.Code)
		case o.err != nil:
			code := diag.Classify(o.err)
			if code == diag.CodeCancel {
				// 未完成样本直接丢弃
				continue
			}
			key := o.key
			agg.Exclude(contract.Exclusion{FileID: o.fileID, Sample: &key, Code: string(code), Reason: o.err.Error()})
			diag.IncOp("pipeline", "sample", "error")
			if t := diag.GetTerminal(); t != nil {
				t.SampleFinish(key.String(), false, o.dur)
			}
		case o.partial != nil:
			if firstErr != nil {
				continue
			}
			// 已完成样本在中断后仍需落盘：保存不受取消影响
			if comp.Store != nil {
				if err := comp.Store.Save(context.WithoutCancel(ctx), *o.partial); err != nil {
					fail(logger, "checkpoint", "save failed", err, string(o.fileID), o.key.String())
					firstErr = errors.Wrap(err, "checkpoint save")
					cancel()
					continue
				}
			}
			if err := agg.Fold(*o.partial); err != nil {
				firstErr = errors.Wrap(contract.ErrInvariantViolation, err.Error())
				cancel()
				continue
			}
			diag.IncOp("pipeline", "sample", "success")
			if t := diag.GetTerminal(); t != nil {
				t.SampleFinish(o.key.String(), true, o.dur)
			}
		}
		if t := diag.GetTerminal(); t != nil {
			t.Progress(agg.Samples(), agg.Excluded())
		}
	}
	perr := <-prodErr

	res := Result{Summary: agg.Finalize(), Resumed: resumed}
	finish := func(err error) (Result, error) {
		if t := diag.GetTerminal(); t != nil {
			t.RunFinish(err == nil, res.Summary.Samples, time.Since(runStart))
		}
		return res, err
	}
	switch {
	case firstErr != nil:
		return finish(firstErr)
	case ctx.Err() != nil:
		logger.Error("pipeline", string(diag.CodeCancel), "run interrupted", &runStart)
		return finish(ctx.Err())
	case perr != nil:
		fail(logger, "reader", "iterate failed", perr, "", "")
		return finish(errors.Wrap(perr, "reader iterate"))
	}
	logger.InfoFinish("pipeline", "run", runStart, int64(res.Summary.Samples))

	if !set.SkipArtifacts {
		if err := writeArtifacts(ctx, comp, &res.Summary, logger); err != nil {
			return finish(err)
		}
	}
	return finish(nil)
}

// produce 按 Reader 的稳定顺序读入清单，展开为样本描述。
// 排除项经 results 发往合并点；生产者自身不触碰聚合器。
func produce(ctx context.Context, comp Components, set Settings, logger *diag.Logger, done map[contract.SampleKey]struct{}, tasks chan<- task, results chan<- outcome) error {
	rtimer := logger.Start("reader", "iterate")
	claimed := map[contract.SampleKey]contract.FileID{}
	files := int64(0)

	send := func(o outcome) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case results <- o:
			return nil
		}
	}
	exclude := func(e contract.Exclusion) error { return send(outcome{excl: &e}) }

	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		files++
		b, err := io.ReadAll(rc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return exclude(contract.Exclusion{FileID: fid, Code: string(diag.CodeMalformed), Reason: fmt.Sprintf("read: %v", err)})
		}
		if !utf8.Valid(b) {
			return exclude(contract.Exclusion{FileID: fid, Code: string(diag.CodeMalformed), Reason: "listing is not valid UTF-8"})
		}
		if _, err := contract.ParseSampleKey(fid, 1); err != nil {
			return exclude(contract.Exclusion{FileID: fid, Code: string(diag.CodeLayout), Reason: err.Error()})
		}
		text := string(b)
		for trial := 1; trial <= set.Trials; trial++ {
			key, _ := contract.ParseSampleKey(fid, trial)
			if prev, dup := claimed[key]; dup {
				k := key
				reason := fmt.Sprintf("sample key already claimed by %s", prev)
				if err := exclude(contract.Exclusion{FileID: fid, Sample: &k, Code: string(diag.CodeDuplicate), Reason: reason}); err != nil {
					return err
				}
				continue
			}
			claimed[key] = fid
			if _, ok := done[key]; ok {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case tasks <- task{key: key, fileID: fid, text: text}:
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	rtimer.Finish("iterate", files)
	diag.IncOp("reader", "finish", "success")
	return nil
}

func sanity(c Components, s Settings) (Settings, error) {
	if c.Reader == nil || c.Tokenizer == nil || c.Comparer == nil {
		return s, errors.New("pipeline: missing components")
	}
	if !s.SkipArtifacts && (c.Reporter == nil || c.Writer == nil) {
		return s, errors.New("pipeline: missing reporter or writer")
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.TimingRepeats < 1 {
		s.TimingRepeats = 1
	}
	if s.Trials < 1 {
		return s, errors.Wrapf(contract.ErrInvalidInput, "trials %d", s.Trials)
	}
	if len(s.Conditions) == 0 {
		return s, errors.Wrap(contract.ErrInvalidInput, "no trim conditions")
	}
	if _, err := contract.ParseUnit(string(s.Unit)); err != nil {
		return s, err
	}
	if err := ngram.ValidateRange(s.MinN, s.MaxN); err != nil {
		return s, err
	}
	return s, nil
}

// fail 统一记录错误事件与指标。
func fail(logger *diag.Logger, comp, msg string, err error, fileID, sample string) {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), fmt.Sprintf("%s: %v", msg, err), nil, fileID, sample)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}
