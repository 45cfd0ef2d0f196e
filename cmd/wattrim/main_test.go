package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
	"github.com/tamadalab/wasm-wat-trimming/internal/pipeline"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := execute(args, &out, &errb)
	return code, out.String(), errb.String()
}

// runArgs 为 run 子命令补上测试专用的日志目录并关闭终端提示。
func runArgs(t *testing.T, args ...string) []string {
	return append([]string{"run", "--log-dir", t.TempDir(), "--status=false"}, args...)
}

func stubPipeline(t *testing.T, fn func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error)) {
	t.Helper()
	old := pipelineRun
	pipelineRun = fn
	t.Cleanup(func() { pipelineRun = old })
}

func writeListings(t *testing.T, root string) {
	t.Helper()
	files := map[string]int{
		"bubsort/c/bubsort.wat":    30,
		"fizzbuzz/go/fizzbuzz.wat": 24,
	}
	for rel, lines := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		var b strings.Builder
		b.WriteString("(module\n")
		for i := 0; i < lines; i++ {
			fmt.Fprintf(&b, "  (i32.const %d)\n  i32.add\n", i%7)
			if i%3 == 0 {
				b.WriteString("  local.get 0 ;; acc\n")
			}
		}
		b.WriteString(")\n")
		if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestInitConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	code, out, _ := runCLI(t, "init-config", dir)
	if code != exitOK {
		t.Fatalf("expect 0, got %d", code)
	}
	if !strings.Contains(out, "config.yaml") {
		t.Fatalf("unexpected stdout %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config not generated: %v", err)
	}
	// 已存在时不覆盖
	if code, _, errs := runCLI(t, "init-config", dir); code != exitConfig || !strings.Contains(errs, "exists") {
		t.Fatalf("expect 3 with exists error, got %d %q", code, errs)
	}
}

func TestInitConfigStdout(t *testing.T) {
	code, out, _ := runCLI(t, "init-config", "-")
	if code != exitOK {
		t.Fatalf("expect 0, got %d", code)
	}
	if !strings.Contains(out, "target_sizes") || !strings.Contains(out, "comparer: cosine") {
		t.Fatalf("template missing keys:\n%s", out)
	}
}

func TestRunSuccess(t *testing.T) {
	root := t.TempDir()
	var got pipeline.Settings
	var comparer string
	stubPipeline(t, func(_ context.Context, comp pipeline.Components, set pipeline.Settings, _ *diag.Logger) (pipeline.Result, error) {
		got = set
		comparer = comp.Comparer.Name()
		return pipeline.Result{Summary: contract.Summary{Samples: 4}}, nil
	})
	code, out, errs := runCLI(t, runArgs(t, "--trials", "2", "--sizes", "10,20", "--strategies", "head,random",
		"--comparer", "jaccard", "--seed", "0", root)...)
	if code != exitOK {
		t.Fatalf("expect 0, got %d (%s)", code, errs)
	}
	if got.Trials != 2 || len(got.Conditions) != 4 || got.Seed != 0 || comparer != "jaccard" {
		t.Fatalf("settings not applied: %+v comparer=%s", got, comparer)
	}
	if len(got.Inputs) != 1 || got.Inputs[0] != root {
		t.Fatalf("roots not applied: %v", got.Inputs)
	}
	if !strings.Contains(out, "4 samples") {
		t.Fatalf("unexpected stdout %q", out)
	}
}

func TestRunConfigErrors(t *testing.T) {
	stubPipeline(t, func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error) {
		t.Fatalf("pipeline must not run on config errors")
		return pipeline.Result{}, nil
	})
	root := t.TempDir()
	cases := map[string][]string{
		"no roots":       runArgs(t),
		"zero trials":    runArgs(t, "--trials", "0", root),
		"bad unit":       runArgs(t, "--unit", "byte", root),
		"bad comparer":   runArgs(t, "--comparer", "euclid", root),
		"missing config": runArgs(t, "--config", filepath.Join(root, "nope.yaml"), root),
		"unknown flag":   runArgs(t, "--max-tokens", "3", root),
		"n range":        runArgs(t, "--min-n", "4", "--max-n", "2", root),
	}
	for name, args := range cases {
		if code, _, _ := runCLI(t, args...); code != exitConfig {
			t.Fatalf("%s: expect 3, got %d", name, code)
		}
	}
}

func TestRunWithConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "c.yaml")
	body := "inputs: [" + dir + "]\ntrials: 3\ntarget_sizes: [7]\ncomponents:\n  comparer: lcs\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WATTRIM_TRIALS", "4")
	var got pipeline.Settings
	stubPipeline(t, func(_ context.Context, _ pipeline.Components, set pipeline.Settings, _ *diag.Logger) (pipeline.Result, error) {
		got = set
		return pipeline.Result{}, nil
	})
	// ENV 覆盖文件
	if code, _, errs := runCLI(t, runArgs(t, "--config", cfgPath)...); code != exitOK {
		t.Fatalf("expect 0, got %d (%s)", code, errs)
	}
	if got.Trials != 4 || got.Conditions[0].TargetSize != 7 {
		t.Fatalf("env over file failed: %+v", got)
	}
	// CLI 覆盖 ENV
	if code, _, _ := runCLI(t, runArgs(t, "--config", cfgPath, "--trials", "6")...); code != exitOK {
		t.Fatalf("expect 0, got %d", code)
	}
	if got.Trials != 6 {
		t.Fatalf("cli over env failed: %d", got.Trials)
	}

	t.Setenv("WATTRIM_SEED", "x")
	if code, _, _ := runCLI(t, runArgs(t, "--config", cfgPath)...); code != exitConfig {
		t.Fatalf("bad env: expect 3, got %d", code)
	}
}

func TestRunPipelineError(t *testing.T) {
	stubPipeline(t, func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error) {
		return pipeline.Result{}, errors.Wrap(contract.ErrInvariantViolation, "boom")
	})
	code, _, errs := runCLI(t, runArgs(t, t.TempDir())...)
	if code != exitRuntime {
		t.Fatalf("expect 1, got %d", code)
	}
	if !strings.Contains(errs, "boom") {
		t.Fatalf("error not reported: %q", errs)
	}
}

func TestRunInterrupted(t *testing.T) {
	stubPipeline(t, func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error) {
		return pipeline.Result{Summary: contract.Summary{Samples: 3}}, context.Canceled
	})
	code, _, errs := runCLI(t, runArgs(t, t.TempDir())...)
	if code != exitInterrupted {
		t.Fatalf("expect 2, got %d", code)
	}
	if !strings.Contains(errs, "interrupted after 3 samples") {
		t.Fatalf("unexpected stderr %q", errs)
	}
}

// 真实流水线：结果表、指标文件与检查点续跑
func TestRunEndToEndResume(t *testing.T) {
	dir := t.TempDir()
	listings := filepath.Join(dir, "listings")
	writeListings(t, listings)
	out := filepath.Join(dir, "results")
	ckpt := filepath.Join(dir, "state", "ckpt.db")
	metrics := filepath.Join(dir, "metrics.prom")
	args := runArgs(t, "--trials", "2", "--sizes", "5,40", "--min-n", "1", "--max-n", "2",
		"--timing-repeats", "1", "--comparer", "jaccard", "--out", out, "--checkpoint", ckpt,
		"--metrics-file", metrics, listings)

	code, stdout, errs := runCLI(t, args...)
	if code != exitOK {
		t.Fatalf("expect 0, got %d (%s)", code, errs)
	}
	if !strings.Contains(stdout, "4 samples, 0 excluded, 0 resumed") {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	for _, name := range []string{"compression.csv", "speedup.csv", "correlation.csv", "excluded.csv", "records.jsonl"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	b, err := os.ReadFile(metrics)
	if err != nil || !strings.Contains(string(b), "wattrim_op_total") {
		t.Fatalf("metrics file not written: %v", err)
	}

	code, stdout, _ = runCLI(t, args...)
	if code != exitOK || !strings.Contains(stdout, "4 resumed") {
		t.Fatalf("second run should resume all samples: %d %q", code, stdout)
	}
	code, stdout, _ = runCLI(t, append(args, "--fresh")...)
	if code != exitOK || !strings.Contains(stdout, "0 resumed") {
		t.Fatalf("--fresh should discard checkpoint: %d %q", code, stdout)
	}
}

func TestTrimCmd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wat")
	if err := os.WriteFile(src, []byte("l1\nl2\nl3\nl4\nl5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := filepath.Join(dir, "out", "a.trim.wat")
	if code, _, errs := runCLI(t, "trim", "--strategy", "middle", "--size", "3", src, dst); code != exitOK {
		t.Fatalf("expect 0, got %d (%s)", code, errs)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(b) != "l1\nl2\nl5\n" {
		t.Fatalf("unexpected middle trim %q", b)
	}

	code, out, _ := runCLI(t, "trim", "-s", "head", "-k", "2", src, "-")
	if code != exitOK || out != "l1\nl2\n" {
		t.Fatalf("head to stdout: %d %q", code, out)
	}
	// 同种子可复现
	_, r1, _ := runCLI(t, "trim", "-s", "random", "-k", "3", "--seed", "9", src, "-")
	_, r2, _ := runCLI(t, "trim", "-s", "random", "-k", "3", "--seed", "9", src, "-")
	if r1 != r2 || strings.Count(r1, "\n") != 3 {
		t.Fatalf("random trim not reproducible: %q %q", r1, r2)
	}
	// 非正的目标大小合法，结果为空
	for _, k := range []string{"0", "-2"} {
		code, out, errs := runCLI(t, "trim", "-s", "tail", "--size="+k, src, "-")
		if code != exitOK || out != "" {
			t.Fatalf("size %s: %d %q (%s)", k, code, out, errs)
		}
	}

	if code, _, _ := runCLI(t, "trim", "-s", "center", "-k", "2", src, "-"); code != exitConfig {
		t.Fatalf("bad strategy: expect 3, got %d", code)
	}
	if code, _, _ := runCLI(t, "trim", "-s", "head", "-k", "2", filepath.Join(dir, "none.wat"), "-"); code != exitRuntime {
		t.Fatalf("missing src: expect 1, got %d", code)
	}
}

func TestFingerprintAndCorrelate(t *testing.T) {
	dir := t.TempDir()
	listings := filepath.Join(dir, "listings")
	writeListings(t, listings)
	out := filepath.Join(dir, "grams")

	code, stdout, errs := runCLI(t, "fingerprint", "--min", "1", "--max", "2", "--out", out, listings)
	if code != exitOK {
		t.Fatalf("expect 0, got %d (%s)", code, errs)
	}
	if !strings.Contains(stdout, "2 listings") {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	g1 := filepath.Join(out, "bubsort", "c", "bubsort_1gram.txt")
	g2 := filepath.Join(out, "fizzbuzz", "go", "fizzbuzz_1gram.txt")
	for _, p := range []string{g1, g2, filepath.Join(out, "bubsort", "c", "bubsort_2gram.txt")} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
	// 指纹基于 token：括号、立即数与注释不进入 gram
	if b, _ := os.ReadFile(g1); string(b) != "i32.add\t30\ni32.const\t30\nlocal.get\t10\n" {
		t.Fatalf("unexpected 1-gram file %q", b)
	}

	code, stdout, _ = runCLI(t, "correlate", g1, g1)
	if code != exitOK || strings.TrimSpace(stdout) != "1" {
		t.Fatalf("self correlation: %d %q", code, stdout)
	}

	// 单文件根：输出仅用文件名
	single := filepath.Join(listings, "fizzbuzz", "go", "fizzbuzz.wat")
	flat := filepath.Join(dir, "flat")
	if code, _, _ := runCLI(t, "fingerprint", "--min", "3", "--max", "3", "-o", flat, single); code != exitOK {
		t.Fatalf("single file: expect 0, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(flat, "fizzbuzz_3gram.txt")); err != nil {
		t.Fatalf("single file output: %v", err)
	}

	// 零方差一侧：未定义
	c := filepath.Join(dir, "const.txt")
	if err := os.WriteFile(c, []byte("a\t2\nb\t2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, stdout, _ := runCLI(t, "correlate", c, c); strings.TrimSpace(stdout) != "undefined" {
		t.Fatalf("expect undefined, got %q", stdout)
	}
	bad := filepath.Join(dir, "bad.txt")
	_ = os.WriteFile(bad, []byte("no tab here\n"), 0o644)
	if code, _, _ := runCLI(t, "correlate", bad, g1); code != exitRuntime {
		t.Fatalf("malformed gram file: expect 1, got %d", code)
	}
	if code, _, _ := runCLI(t, "fingerprint", "--min", "3", "--max", "1", listings); code != exitConfig {
		t.Fatalf("bad range: expect 3, got %d", code)
	}
}
