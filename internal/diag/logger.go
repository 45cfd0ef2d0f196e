package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// lineSink 接收完整的一行 JSON（不含换行）。
type lineSink interface {
	WriteLine(b []byte) error
}

// writerSink 把行写入任意 io.Writer（测试或 --log-file=-）。
type writerSink struct{ w io.Writer }

func (s writerSink) WriteLine(b []byte) error {
	_, err := s.w.Write(append(b, '\n'))
	return err
}

// Logger 为最小结构化日志器：单行 JSON；默认写入 logs/ 下的轮转文件。
type Logger struct {
	corrID string
	level  Level
	sink   lineSink
	mu     sync.Mutex
}

// DefaultLogDir 为默认日志目录。
const DefaultLogDir = "logs"

// NewLogger 通过配置的 level 初始化，日志写入 DefaultLogDir，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerAt(corrID, level, DefaultLogDir)
}

// NewLoggerAt 同 NewLogger，日志目录可指定。
func NewLoggerAt(corrID, level, dir string) *Logger {
	return &Logger{corrID: corrID, level: parseLevel(level), sink: NewRotatingFile(dir, 0, 0)}
}

// NewLoggerTo 将日志写入 w。
func NewLoggerTo(corrID, level string, w io.Writer) *Logger {
	return &Logger{corrID: corrID, level: parseLevel(level), sink: writerSink{w: w}}
}

// Nop 返回丢弃全部事件的 Logger。
func Nop() *Logger { return NewLoggerTo("", "error", io.Discard) }

// ParseLevel 校验级别名；未知名称返回 false。
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, true
	case "info", "":
		return Info, true
	case "warn":
		return Warn, true
	case "error":
		return Error, true
	}
	return Info, false
}

func parseLevel(s string) Level {
	lv, _ := ParseLevel(s)
	return lv
}

// CorrID 返回本次运行的关联 ID。
func (l *Logger) CorrID() string { return l.corrID }

// Event 为标准事件结构。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|error|skip
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	FileID string            `json:"file_id,omitempty"`
	Sample string            `json:"sample,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = os.Stderr.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(append(b, '\n'))
	}
}

// Close 关闭底层轮转文件（若有）。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	if rf, ok := l.sink.(*RotatingFile); ok {
		return rf.Close()
	}
	return nil
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id/sample 的 start。
func (l *Logger) StartWith(comp, msg, fileID, sample string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: fileID, Sample: sample, Msg: msg})
	return &Timer{l: l, comp: comp, fileID: fileID, sample: sample, t0: time.Now()}
}

// StartWithKV 记录带 file_id/sample 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, sample string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: fileID, Sample: sample, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, sample: sample, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 file_id/sample。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID, sample string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, sample, nil)
}

// ErrorWithKV 支持附带键值对。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, sample string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, Sample: sample, KV: kv})
}

// Warn 记录被跳过（排除）的输入；不中断运行。
func (l *Logger) Warn(comp, code, msg, fileID string) {
	l.log(Warn, Event{Comp: comp, Stage: "skip", Code: code, Msg: msg, FileID: fileID})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	sample string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, FileID: t.fileID, Sample: t.sample, Msg: msg})
}

// DebugStart 输出调试级别的 start 事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID, sample string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", FileID: fileID, Sample: sample, Msg: msg, KV: kv})
}
