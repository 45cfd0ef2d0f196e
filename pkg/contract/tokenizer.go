package contract

// Tokenizer: 原始清单文本 → 指令 token 序列。
// 约束：
// 1) 纯函数、无状态、可并发调用；
// 2) 去除空白、注释与纯语法分隔符，保持剩余 token 相对顺序；
// 3) 幂等：Tokenize(join(Tokenize(x))) == Tokenize(x)；
// 4) 空输入 → 空序列，不报错。
type Tokenizer interface {
	Tokenize(text string) Sequence
}
