package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
)

const (
	currentLogName = "wattrim-current.txt"
	rotatedLogFmt  = "wattrim-%s.txt"
	rotatedLogGlob = "wattrim-[0-9]*.txt"

	defaultLogBytes = 10 * 1024 * 1024
	defaultLogKeep  = 8
)

// RotatingFile 是调试日志的落盘端：超出 limit 字节时把当前文件改名为
// 带 UTC 时间戳的归档，再重新创建当前文件；归档最多保留 keep 份。
type RotatingFile struct {
	mu    sync.Mutex
	dir   string
	limit int64
	keep  int

	cur  *os.File
	size int64
}

// NewRotatingFile 中 limit<=0 取 10 MiB，keep<=0 取 8。
func NewRotatingFile(dir string, limit int64, keep int) *RotatingFile {
	if limit <= 0 {
		limit = defaultLogBytes
	}
	if keep <= 0 {
		keep = defaultLogKeep
	}
	return &RotatingFile{dir: dir, limit: limit, keep: keep}
}

// WriteLine 追加一行（自动补换行）；单行超过 limit 时仍整行写入新文件。
func (r *RotatingFile) WriteLine(line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.open(); err != nil {
		return err
	}
	need := int64(len(line)) + 1
	if r.size > 0 && r.size+need > r.limit {
		if err := r.roll(); err != nil {
			return err
		}
	}
	buf := make([]byte, 0, need)
	buf = append(append(buf, line...), '\n')
	n, err := r.cur.Write(buf)
	r.size += int64(n)
	return err
}

func (r *RotatingFile) open() error {
	if r.cur != nil {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return errors.Wrapf(err, "log dir %s", r.dir)
	}
	f, err := os.OpenFile(filepath.Join(r.dir, currentLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	r.cur, r.size = f, 0
	if st, err := f.Stat(); err == nil {
		r.size = st.Size()
	}
	return nil
}

// roll 归档当前文件并清理超额归档；清理失败不影响写入。
func (r *RotatingFile) roll() error {
	if r.cur != nil {
		_ = r.cur.Close()
		r.cur = nil
	}
	// 纳秒精度，同秒内多次轮转不互相覆盖
	stamp := time.Now().UTC().Format("20060102-150405.000000000")
	archived := filepath.Join(r.dir, fmt.Sprintf(rotatedLogFmt, stamp))
	if err := os.Rename(filepath.Join(r.dir, currentLogName), archived); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "archive log file")
	}
	_ = r.prune()
	return r.open()
}

// prune 按文件名（即时间戳）排序，删除最旧的归档直至剩 keep 份。
func (r *RotatingFile) prune() error {
	// 在 DirFS 内匹配，目录名中的通配符不参与
	old, err := doublestar.Glob(os.DirFS(r.dir), rotatedLogGlob)
	if err != nil {
		return err
	}
	if len(old) <= r.keep {
		return nil
	}
	sort.Strings(old)
	var errs error
	for _, p := range old[:len(old)-r.keep] {
		if err := os.Remove(filepath.Join(r.dir, p)); err != nil && !os.IsNotExist(err) {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
