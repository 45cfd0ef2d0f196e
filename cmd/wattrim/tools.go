package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/tamadalab/wasm-wat-trimming/internal/pipeline"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
	"github.com/tamadalab/wasm-wat-trimming/pkg/correlate"
	"github.com/tamadalab/wasm-wat-trimming/pkg/ngram"
	"github.com/tamadalab/wasm-wat-trimming/pkg/registry"
	"github.com/tamadalab/wasm-wat-trimming/pkg/trim"
	rfs "github.com/tamadalab/wasm-wat-trimming/plugins/reader/filesystem"
	wfs "github.com/tamadalab/wasm-wat-trimming/plugins/writer/filesystem"
)

func newTrimCmd() *cobra.Command {
	var (
		strategy  string
		size      int
		seed      uint64
		unit      string
		tokenizer string
	)
	cmd := &cobra.Command{
		Use:   "trim --strategy S --size K [--seed N] [--unit line|token] SRC DST",
		Short: "Trim one listing and write the kept units",
		Long: `Trim keeps at most --size units of SRC using the chosen strategy and writes
them to DST, one unit per line. SRC and DST may be "-" for stdin and stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := contract.ParseStrategy(strategy)
			if err != nil {
				return configErr(err)
			}
			u, err := contract.ParseUnit(unit)
			if err != nil {
				return configErr(err)
			}
			tok, err := newTokenizer(tokenizer)
			if err != nil {
				return configErr(err)
			}
			text, err := readListing(cmd.InOrStdin(), args[0])
			if err != nil {
				return runtimeErr(err)
			}
			kept, err := trim.Trim(pipeline.Units(text, u, tok), st, size, seed)
			if err != nil {
				return runtimeErr(err)
			}
			var out bytes.Buffer
			for _, k := range kept {
				out.WriteString(k)
				out.WriteByte('\n')
			}
			if err := writeListing(cmd.Context(), cmd.OutOrStdout(), args[1], &out); err != nil {
				return runtimeErr(err)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&strategy, "strategy", "s", "", "head|tail|middle|random")
	fl.IntVarP(&size, "size", "k", 0, "target size in units (<= 0 keeps nothing)")
	fl.Uint64Var(&seed, "seed", 0, "seed for the random strategy")
	fl.StringVar(&unit, "unit", string(contract.UnitLine), "line|token")
	fl.StringVar(&tokenizer, "tokenizer", "wat", "tokenizer for --unit token")
	_ = cmd.MarkFlagRequired("strategy")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func newFingerprintCmd() *cobra.Command {
	var (
		minN, maxN int
		out        string
		tokenizer  string
	)
	cmd := &cobra.Command{
		Use:   "fingerprint [--min 1] [--max 6] [--out DIR] PATH...",
		Short: "Write n-gram fingerprints of listings",
		Long: `Fingerprint writes <stem>_<n>gram.txt for every order n in [--min, --max].
Listings are always tokenized before counting grams. A PATH that is a
directory is scanned for listings and the output mirrors its layout below --out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ngram.ValidateRange(minN, maxN); err != nil {
				return configErr(err)
			}
			tok, err := newTokenizer(tokenizer)
			if err != nil {
				return configErr(err)
			}
			reader, err := rfs.New(nil)
			if err != nil {
				return configErr(err)
			}
			w, err := wfs.New(&wfs.Options{OutputDir: out})
			if err != nil {
				return configErr(err)
			}
			ctx := cmd.Context()
			files := 0
			for _, root := range args {
				// 目录根下保留相对布局；单文件根只取文件名
				tree := root != "-" && isDir(root)
				err := reader.Iterate(ctx, []string{root}, func(fid contract.FileID, rc io.ReadCloser) error {
					defer rc.Close()
					b, err := io.ReadAll(rc)
					if err != nil {
						return errors.Wrapf(err, "read %s", fid)
					}
					if !utf8.Valid(b) {
						return errors.Wrapf(contract.ErrMalformedInput, "%s: listing is not valid UTF-8", fid)
					}
					set, err := ngram.ExtractRange(tok.Tokenize(string(b)), minN, maxN)
					if err != nil {
						return err
					}
					dir := ""
					if tree {
						dir = path.Dir(string(fid))
					}
					for _, n := range set.Orders() {
						var buf bytes.Buffer
						if err := ngram.Encode(&buf, set[n]); err != nil {
							return err
						}
						id := contract.ArtifactID(path.Join(dir, ngram.FileName(fid.Stem(), n)))
						if err := w.Write(ctx, id, &buf); err != nil {
							return err
						}
					}
					files++
					return nil
				})
				if err != nil {
					return runtimeErr(err)
				}
			}
			fprintf(cmd.OutOrStdout(), "%d listings fingerprinted -> %s\n", files, out)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&minN, "min", ngram.DefaultMinN, "smallest n-gram order")
	fl.IntVar(&maxN, "max", ngram.DefaultMaxN, "largest n-gram order")
	fl.StringVarP(&out, "out", "o", ".", "output directory")
	fl.StringVar(&tokenizer, "tokenizer", "wat", "tokenizer name")
	return cmd
}

func newCorrelateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correlate A_gram.txt B_gram.txt",
		Short: "Print the Pearson correlation of two fingerprint files",
		Long: `Correlate aligns two fingerprints on the union of their grams (missing
grams count 0) and prints the Pearson coefficient, or "undefined" when either
side has zero variance.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := decodeFingerprint(args[0])
			if err != nil {
				return runtimeErr(err)
			}
			b, err := decodeFingerprint(args[1])
			if err != nil {
				return runtimeErr(err)
			}
			fprintf(cmd.OutOrStdout(), "%s\n", correlate.Fingerprints(a, b))
			return nil
		},
	}
}

func newTokenizer(name string) (contract.Tokenizer, error) {
	f := registry.Tokenizer[strings.TrimSpace(name)]
	if f == nil {
		return nil, errors.Wrapf(contract.ErrInvalidInput, "tokenizer %q not registered (have %s)",
			name, strings.Join(registry.Names(registry.Tokenizer), ", "))
	}
	return f(nil)
}

func decodeFingerprint(p string) (contract.Fingerprint, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fp, err := ngram.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", p)
	}
	return fp, nil
}

// readListing 读取 "-"（stdin）或文件，要求 UTF-8。
func readListing(stdin io.Reader, p string) (string, error) {
	var (
		b   []byte
		err error
	)
	if p == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(p)
	}
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.Wrapf(contract.ErrMalformedInput, "%s: listing is not valid UTF-8", p)
	}
	return string(b), nil
}

// writeListing 写到 "-"（stdout）或经原子 writer 写入目标文件。
func writeListing(ctx context.Context, stdout io.Writer, p string, r io.Reader) error {
	if p == "-" {
		_, err := io.Copy(stdout, r)
		return err
	}
	w, err := wfs.New(&wfs.Options{OutputDir: filepath.Dir(p), Flat: true})
	if err != nil {
		return err
	}
	return w.Write(ctx, contract.ArtifactID(filepath.Base(p)), r)
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}
