package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// DefaultInclude 为目录扫描的默认匹配模式（相对根，正斜杠）。
var DefaultInclude = []string{"**/*.wat", "**/*.wat.gz", "**/*.wat.zst"}

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 在扫描目录时跳过这些目录名（基名完全匹配，大小写不敏感）。
	// 仅影响目录递归，不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Include: doublestar 模式，匹配相对根的路径；为空使用 DefaultInclude。
	// 仅影响目录递归；单文件 root 总是读取。
	Include []string `json:"include"`
	// Decompress: 按扩展名透明解压 .gz/.zst。默认 true。
	Decompress *bool `json:"decompress,omitempty"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize int
	// 以小写形式保存，比较时按小写基名匹配。
	excludeDir map[string]struct{}
	include    []string
	decompress bool
}

// New 创建 FileSystem Reader；Include 模式非法时返回 ErrInvalidInput。
func New(opts *Options) (*FileSystem, error) {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, excludeDir: map[string]struct{}{}, include: DefaultInclude, decompress: true}
	if opts == nil {
		return r, nil
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, name := range opts.ExcludeDirNames {
		if name == "" {
			continue
		}
		r.excludeDir[strings.ToLower(name)] = struct{}{}
	}
	if len(opts.Include) > 0 {
		for _, p := range opts.Include {
			if !doublestar.ValidatePattern(p) {
				return nil, errors.Wrapf(contract.ErrInvalidInput, "reader: bad include pattern %q", p)
			}
		}
		r.include = append([]string(nil), opts.Include...)
	}
	if opts.Decompress != nil {
		r.decompress = *opts.Decompress
	}
	return r, nil
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate 遍历 roots，按稳定顺序对每个匹配文件调用 yield。
// 目录 root 下的 FileID 为相对该 root 的路径；单文件 root 的 FileID 为其规范化路径。
// 支持 roots 为空或仅包含 "-" 作为 STDIN。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.FileID("stdin"), newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize))
	}
	for _, s := range roots {
		if s == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	// 仅跟随到常规文件；目录符号链接不跟随（忽略）
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.emit(root, contract.NormalizeFileID(root), yield)
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, "", yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.emit(root, contract.NormalizeFileID(root), yield)
}

// walkDir 先目录后文件、各自按字典序，保证跨平台稳定顺序。
func (r *FileSystem) walkDir(ctx context.Context, root, rel string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(root, rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, root, filepath.Join(rel, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		childRel := filepath.Join(rel, e.Name())
		id := contract.NormalizeFileID(childRel)
		if !r.matches(string(id)) {
			continue
		}
		p := filepath.Join(root, childRel)
		// 符号链接仅跟随到常规文件
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}
		if err := r.emit(p, id, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) matches(rel string) bool {
	for _, p := range r.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (r *FileSystem) emit(p string, id contract.FileID, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	rc, err := r.wrap(f, p)
	if err != nil {
		// 压缩头损坏：延迟到读取时报告，由调用方按文件排除
		rc = &failedReader{err: errors.Wrapf(contract.ErrMalformedInput, "%s: %v", id, err), c: f}
	}
	if err := yield(id, rc); err != nil {
		_ = rc.Close()
		return err
	}
	return nil
}

// wrap 按扩展名选择解压器并加缓冲。
func (r *FileSystem) wrap(f *os.File, p string) (io.ReadCloser, error) {
	if r.decompress {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".gz":
			zr, err := gzip.NewReader(bufio.NewReaderSize(f, r.bufSize))
			if err != nil {
				return nil, err
			}
			return &multiCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
		case ".zst":
			zr, err := zstd.NewReader(bufio.NewReaderSize(f, r.bufSize))
			if err != nil {
				return nil, err
			}
			return &multiCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), f}}, nil
		}
	}
	return newBufferedCloser(f, r.bufSize), nil
}

// multiCloser 依次关闭解压器与底层文件。
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// failedReader 在首次读取时返回打开阶段的错误。
type failedReader struct {
	err error
	c   io.Closer
}

func (f *failedReader) Read([]byte) (int, error) { return 0, f.err }
func (f *failedReader) Close() error             { return f.c.Close() }

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
