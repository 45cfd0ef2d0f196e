package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
	"github.com/tamadalab/wasm-wat-trimming/internal/pipeline"
)

// 退出码约定：0 成功；1 运行期失败；2 被中断；3 配置错误。
const (
	exitOK          = 0
	exitRuntime     = 1
	exitInterrupted = 2
	exitConfig      = 3
)

var pipelineRun = pipeline.Run

// exitError 携带退出码；Err 为空时仅设置退出码、不打印。
type exitError struct {
	Code int
	Err  error
}

func (e *exitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *exitError) Unwrap() error { return e.Err }

func configErr(err error) error  { return &exitError{Code: exitConfig, Err: err} }
func runtimeErr(err error) error { return &exitError{Code: exitRuntime, Err: err} }

// globalFlags 为所有子命令共享的旗标。
type globalFlags struct {
	logDir   string
	logLevel string
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute 解析并执行命令行，返回退出码。
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fprintf(stderr, "error: %v\n", ee.Err)
		}
		return ee.Code
	}
	// cobra 自身的旗标/参数错误
	fprintf(stderr, "error: %v\n", err)
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "wattrim",
		Short: "Trim WebAssembly text listings and measure what survives",
		Long: `wattrim trims WebAssembly text (WAT) listings with head, tail, middle and
random strategies, extracts n-gram fingerprints from the original and trimmed
listings, and reports how well the trimmed fingerprints correlate with the
originals, how much the listing shrank and how much faster a comparer runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&g.logDir, "log-dir", diag.DefaultLogDir, "directory for rotated JSON-line logs")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")

	root.AddCommand(
		newRunCmd(g),
		newTrimCmd(),
		newFingerprintCmd(),
		newCorrelateCmd(),
		newInitConfigCmd(),
	)
	return root
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
