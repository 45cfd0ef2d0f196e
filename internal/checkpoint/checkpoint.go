// Package checkpoint 将已完成样本的 Partial 持久化到 SQLite，供中断后的同一运行续跑。
//
// 以 run_id 隔离：run_id 由影响结果的配置字段派生，配置变化即视为新运行。
package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tamadalab/wasm-wat-trimming/internal/aggregate"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	run_id     TEXT    NOT NULL,
	algorithm  TEXT    NOT NULL,
	language   TEXT    NOT NULL,
	trial      INTEGER NOT NULL,
	file_id    TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, algorithm, language, trial)
);
CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id);
`

// Store 为单个运行的检查点。并发安全（database/sql 连接池）。
type Store struct {
	db  *sqlx.DB
	run string
}

type sampleRow struct {
	Algorithm string `db:"algorithm"`
	Language  string `db:"language"`
	Trial     int    `db:"trial"`
	FileID    string `db:"file_id"`
	Payload   []byte `db:"payload"`
}

// Open 打开（必要时创建）path 处的数据库并完成建表。
func Open(ctx context.Context, path, run string) (*Store, error) {
	if path == "" || run == "" {
		return nil, errors.Wrap(contract.ErrInvalidInput, "checkpoint: path and run id are required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "checkpoint: create directory for %s", path)
		}
	}
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: open database")
	}
	// 单写者；避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "checkpoint: connect")
	}
	s := newStore(db, run)
	if err := s.migrate(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *sqlx.DB, run string) *Store { return &Store{db: db, run: run} }

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "checkpoint: create schema")
	}
	return nil
}

// Run 返回当前运行标识。
func (s *Store) Run() string { return s.run }

// Save 持久化单个样本结果；同键重复保存以最后一次为准。
func (s *Store) Save(ctx context.Context, p aggregate.Partial) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, "checkpoint: encode %s", p.Sample)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO samples (run_id, algorithm, language, trial, file_id, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		s.run, p.Sample.Algorithm, p.Sample.Language, p.Sample.Trial, string(p.FileID), payload)
	if err != nil {
		return errors.Wrapf(err, "checkpoint: save %s", p.Sample)
	}
	return nil
}

// Load 按样本键规范顺序返回当前运行的全部已保存结果。
func (s *Store) Load(ctx context.Context) ([]aggregate.Partial, error) {
	var rows []sampleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT algorithm, language, trial, file_id, payload FROM samples WHERE run_id = ? ORDER BY algorithm, language, trial`,
		s.run)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: load")
	}
	out := make([]aggregate.Partial, 0, len(rows))
	for _, r := range rows {
		var p aggregate.Partial
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, errors.Wrapf(contract.ErrInvariantViolation, "checkpoint: corrupt payload for %s/%s#%d: %v", r.Algorithm, r.Language, r.Trial, err)
		}
		key := contract.SampleKey{Algorithm: r.Algorithm, Language: r.Language, Trial: r.Trial}
		if p.Sample != key {
			return nil, errors.Wrapf(contract.ErrInvariantViolation, "checkpoint: payload key %s does not match row %s", p.Sample, key)
		}
		out = append(out, p)
	}
	return out, nil
}

// Count 返回当前运行已保存的样本数。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM samples WHERE run_id = ?`, s.run); err != nil {
		return 0, errors.Wrap(err, "checkpoint: count")
	}
	return n, nil
}

// Reset 删除当前运行的全部记录（--fresh）。
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE run_id = ?`, s.run); err != nil {
		return errors.Wrap(err, "checkpoint: reset")
	}
	return nil
}

// Close 关闭数据库。
func (s *Store) Close() error { return s.db.Close() }
