package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tamadalab/wasm-wat-trimming/internal/checkpoint"
	cfgpkg "github.com/tamadalab/wasm-wat-trimming/internal/config"
	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
)

// runFlags 为 run 子命令的覆盖项；未显式设置的旗标不参与合并。
type runFlags struct {
	config      string
	concurrency int
	unit        string
	trials      int
	seed        int64
	strategies  []string
	sizes       []int
	minN        int
	maxN        int
	repeats     int
	tokenizer   string
	comparer    string
	outputDir   string
	checkpoint  string
	fresh       bool
	metricsFile string
	status      bool
}

func bindRunFlags(fl *pflag.FlagSet, f *runFlags) {
	fl.StringVarP(&f.config, "config", "c", "", "config file (YAML or JSON); defaults to ./config.yaml or ./config.json when present")
	fl.IntVarP(&f.concurrency, "concurrency", "j", 0, "number of sample workers")
	fl.StringVar(&f.unit, "unit", "", "experimental unit: line|token")
	fl.IntVar(&f.trials, "trials", 0, "samples per listing")
	fl.Int64Var(&f.seed, "seed", 0, "base seed for the random strategy")
	fl.StringSliceVar(&f.strategies, "strategies", nil, "trim strategies (head,tail,middle,random)")
	fl.IntSliceVar(&f.sizes, "sizes", nil, "target sizes in units")
	fl.IntVar(&f.minN, "min-n", 0, "smallest n-gram order")
	fl.IntVar(&f.maxN, "max-n", 0, "largest n-gram order")
	fl.IntVar(&f.repeats, "timing-repeats", 0, "compare calls per timing (minimum is kept)")
	fl.StringVar(&f.tokenizer, "tokenizer", "", "tokenizer name")
	fl.StringVar(&f.comparer, "comparer", "", "comparer name")
	fl.StringVarP(&f.outputDir, "out", "o", "", "result directory")
	fl.StringVar(&f.checkpoint, "checkpoint", "", "SQLite checkpoint path (enables resume)")
	fl.BoolVar(&f.fresh, "fresh", false, "discard checkpointed samples of this run before starting")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	fl.BoolVar(&f.status, "status", true, "terminal status on stderr")
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] ROOT...",
		Short: "Run the full trimming sweep over listing roots",
		Long: `Run expands every listing under the roots into samples, trims each sample
under every strategy and target size, and writes the compression, speed-up,
correlation and exclusion tables plus records.jsonl to the result directory.
ROOT may be "-" to read a single listing from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, g, f, args)
		},
	}
	bindRunFlags(cmd.Flags(), f)
	return cmd
}

func runSweep(cmd *cobra.Command, g *globalFlags, f *runFlags, roots []string) error {
	start := time.Now()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	corrID := uuid.NewString()

	cfg, err := resolveConfig(cmd.Flags(), g, f, roots)
	if err != nil {
		return configErr(err)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		// 打印有效配置，便于诊断
		dumpConfig(stderr, cfg)
		return configErr(err)
	}

	logger := diag.NewLoggerAt(corrID, cfg.Logging.Level, g.logDir)
	defer logger.Close()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble failed", &start)
		return configErr(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := cfgpkg.RunID(cfg)
	logger.DebugStart("config", "effective", "", "", map[string]string{
		"run_id":      runID,
		"inputs":      strconv.Itoa(len(cfg.Inputs)),
		"concurrency": strconv.Itoa(cfg.Concurrency),
		"unit":        cfg.Unit,
		"trials":      strconv.Itoa(cfg.Trials),
		"seed":        strconv.FormatInt(cfg.Seed, 10),
		"conditions":  strconv.Itoa(len(set.Conditions)),
		"tokenizer":   cfg.Components.Tokenizer,
		"comparer":    cfg.Components.Comparer,
		"checkpoint":  cfg.Checkpoint,
		"output_dir":  cfg.OutputDir,
	})

	if cfg.Checkpoint != "" {
		store, err := checkpoint.Open(ctx, cfg.Checkpoint, runID)
		if err != nil {
			logger.Error("checkpoint", string(diag.Classify(err)), "open failed", &start)
			return runtimeErr(err)
		}
		defer store.Close()
		if f.fresh {
			if err := store.Reset(ctx); err != nil {
				return runtimeErr(err)
			}
		}
		comp.Store = store
	}

	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	res, err := pipelineRun(ctx, comp, set, logger)
	if f.metricsFile != "" {
		if merr := diag.WriteMetrics(f.metricsFile); merr != nil {
			fprintf(stderr, "warning: %v\n", merr)
		}
	}
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code == diag.CodeCancel {
			fprintf(stderr, "interrupted after %d samples; rerun with the same configuration to resume\n", res.Summary.Samples)
			return &exitError{Code: exitInterrupted}
		}
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		return runtimeErr(err)
	}
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	fprintf(stdout, "run %s: %d samples, %d excluded, %d resumed -> %s\n",
		runID, res.Summary.Samples, len(res.Summary.Excluded), res.Resumed, cfg.OutputDir)
	return nil
}

// resolveConfig 按优先级合并：CLI > ENV(WATTRIM_*) > 配置文件 > 默认值。
func resolveConfig(fl *pflag.FlagSet, g *globalFlags, f *runFlags, roots []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		path = discoverConfig()
	}
	var raw []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		raw = []byte(s)
		path = ""
	}
	if path != "" || len(raw) > 0 {
		base, err := cfgpkg.Load(path, raw)
		if err != nil {
			return cfg, errors.Wrap(err, "parse config")
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, env)

	over := cfgpkg.Empty()
	if len(roots) > 0 {
		over.Inputs = roots
	}
	if fl.Changed("concurrency") {
		over.Concurrency = f.concurrency
	}
	over.Unit = f.unit
	if fl.Changed("trials") {
		over.Trials = f.trials
	}
	if fl.Changed("seed") {
		over.Seed = f.seed
	}
	over.Strategies = f.strategies
	over.TargetSizes = f.sizes
	if fl.Changed("min-n") {
		over.MinN = f.minN
	}
	if fl.Changed("max-n") {
		over.MaxN = f.maxN
	}
	if fl.Changed("timing-repeats") {
		over.TimingRepeats = f.repeats
	}
	over.Components.Tokenizer = f.tokenizer
	over.Components.Comparer = f.comparer
	over.OutputDir = f.outputDir
	over.Checkpoint = f.checkpoint
	over.Logging.Level = g.logLevel
	cfg = cfgpkg.Merge(cfg, over)

	// Merge 不覆盖零值；显式传入的非法零值需在此保留以便校验报错
	if fl.Changed("concurrency") && f.concurrency == 0 {
		cfg.Concurrency = 0
	}
	if fl.Changed("trials") && f.trials == 0 {
		cfg.Trials = 0
	}
	return cfg, nil
}

// discoverConfig 返回工作目录下存在的默认配置文件。
func discoverConfig() string {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		if st, err := os.Stat(name); err == nil && !st.IsDir() {
			return name
		}
	}
	return ""
}

func dumpConfig(w io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fprintf(w, "effective config:\n%s\n", b)
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [DIR]",
		Short: "Write a template config.yaml (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			b, err := cfgpkg.TemplateYAML(cfgpkg.DefaultTemplateConfig())
			if err != nil {
				return runtimeErr(err)
			}
			if dir == "-" {
				_, err := cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr(err)
			}
			p := filepath.Join(dir, "config.yaml")
			if err := writeNew(p, b); err != nil {
				return configErr(err)
			}
			fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			return nil
		},
	}
}

// writeNew 仅在文件不存在时创建并写入。
func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
