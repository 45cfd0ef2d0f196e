package ngram

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// FileName 返回批量输出的 gram 文件名：<stem>_<n>gram.txt。
func FileName(stem string, n int) string {
	return fmt.Sprintf("%s_%dgram.txt", stem, n)
}

// Ranked 按计数降序、同计数按 gram 字节序升序返回键。
func Ranked(fp contract.Fingerprint) []contract.Gram {
	keys := fp.Keys()
	slices.SortStableFunc(keys, func(a, b contract.Gram) int { return fp[b] - fp[a] })
	return keys
}

// Encode 以 "gram<TAB>count" 行写出指纹；gram 内 token 以空格分隔。
func Encode(w io.Writer, fp contract.Fingerprint) error {
	bw := bufio.NewWriter(w)
	for _, g := range Ranked(fp) {
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", g.String(), fp[g]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode 解析 Encode 的输出。空行忽略；重复 gram 累加。
// 行格式不合法时返回 ErrMalformedInput（带行号）。
func Decode(r io.Reader) (contract.Fingerprint, error) {
	fp := contract.Fingerprint{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		i := strings.LastIndexByte(text, '\t')
		if i <= 0 {
			return nil, errors.Wrapf(contract.ErrMalformedInput, "line %d: missing tab separator", line)
		}
		count, err := strconv.Atoi(strings.TrimSpace(text[i+1:]))
		if err != nil || count < 0 {
			return nil, errors.Wrapf(contract.ErrMalformedInput, "line %d: bad count %q", line, text[i+1:])
		}
		tokens := strings.Fields(text[:i])
		if len(tokens) == 0 {
			return nil, errors.Wrapf(contract.ErrMalformedInput, "line %d: empty gram", line)
		}
		fp[contract.NewGram(tokens...)] += count
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan gram file")
	}
	return fp, nil
}
