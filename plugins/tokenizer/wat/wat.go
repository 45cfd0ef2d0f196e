package wat

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// Options 为 WAT Tokenizer 的可选配置。
type Options struct {
	// ExtraOps: 追加视为指令的无点单词（如 "call_indirect"）；仅 InstructionsOnly 生效。
	ExtraOps []string `json:"extra_ops"`
}

// 无点单词指令。带点指令（i32.add、local.get、memory.size …）由 dottedRe 匹配。
var singleWordOps = []string{
	"block", "loop", "if", "else", "end",
	"call", "drop", "return", "nop", "unreachable",
	"br", "br_if", "br_table", "select",
}

var dottedRe = regexp.MustCompile(`^[a-z][a-z0-9_]*(?:\.[a-z0-9_]+)+$`)

// Tokenizer 实现 contract.Tokenizer。
// plain: 去注释后按空白与括号切分；
// wat:   在 plain 基础上仅保留指令 token（数字、即值、$标识符、声明关键字丢弃）。
type Tokenizer struct {
	instrOnly bool
	ops       map[string]struct{}
}

var _ contract.Tokenizer = (*Tokenizer)(nil)

// NewPlain 创建仅做结构清理的 Tokenizer。
func NewPlain() *Tokenizer { return &Tokenizer{} }

// New 创建只保留指令的 WAT Tokenizer。
func New(opts *Options) *Tokenizer {
	ops := make(map[string]struct{}, len(singleWordOps))
	for _, op := range singleWordOps {
		ops[op] = struct{}{}
	}
	if opts != nil {
		for _, op := range opts.ExtraOps {
			if op = strings.TrimSpace(op); op != "" {
				ops[op] = struct{}{}
			}
		}
	}
	return &Tokenizer{instrOnly: true, ops: ops}
}

// Tokenize 见 contract.Tokenizer 约束。
func (t *Tokenizer) Tokenize(text string) contract.Sequence {
	fields := strings.FieldsFunc(stripComments(text), isDelim)
	if !t.instrOnly {
		return contract.Sequence(fields)
	}
	out := fields[:0]
	for _, f := range fields {
		if t.isInstruction(f) {
			out = append(out, f)
		}
	}
	return contract.Sequence(out)
}

func (t *Tokenizer) isInstruction(tok string) bool {
	if _, ok := t.ops[tok]; ok {
		return true
	}
	return dottedRe.MatchString(tok)
}

func isDelim(r rune) bool { return r == '(' || r == ')' || unicode.IsSpace(r) }

// stripComments 移除 ";;" 行注释与 "(; ;)" 块注释（支持嵌套）；字符串字面量内不识别注释。
// 被移除的注释替换为一个空格，避免前后 token 粘连。
func stripComments(s string) string {
	if !strings.Contains(s, ";") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(s) {
					i++
					b.WriteByte(s[i])
				}
			case '"':
				inStr = false
			}
			continue
		}
		switch {
		case c == '"':
			inStr = true
			b.WriteByte(c)
		case c == ';' && i+1 < len(s) && s[i+1] == ';':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '(' && i+1 < len(s) && s[i+1] == ';':
			depth := 1
			i += 2
			for i < len(s) && depth > 0 {
				switch {
				case s[i] == '(' && i+1 < len(s) && s[i+1] == ';':
					depth++
					i += 2
				case s[i] == ';' && i+1 < len(s) && s[i+1] == ')':
					depth--
					i += 2
				default:
					i++
				}
			}
			i--
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
