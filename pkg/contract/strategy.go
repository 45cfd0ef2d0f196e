package contract

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Strategy: 裁剪策略。
type Strategy string

const (
	StrategyRandom Strategy = "random"
	StrategyHead   Strategy = "head"
	StrategyMiddle Strategy = "middle"
	StrategyTail   Strategy = "tail"
)

// Strategies 返回全部策略（规范输出顺序）。
func Strategies() []Strategy {
	return []Strategy{StrategyRandom, StrategyHead, StrategyMiddle, StrategyTail}
}

// ParseStrategy 解析策略名（大小写不敏感）。
func ParseStrategy(s string) (Strategy, error) {
	want := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Strategies() {
		if st == want {
			return st, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidInput, "unknown strategy %q", s)
}

// Rank 返回策略在规范顺序中的位置；未知策略排在最后。
func (s Strategy) Rank() int {
	for i, st := range Strategies() {
		if st == s {
			return i
		}
	}
	return len(Strategies())
}

// Seeded 仅 random 依赖种子；其余策略是 (input, target_size) 的纯函数。
func (s Strategy) Seeded() bool { return s == StrategyRandom }

// Condition: 裁剪条件 (strategy, target_size)，也是汇总分组键。
// 种子按样本派生，不属于分组键。
type Condition struct {
	Strategy   Strategy `json:"strategy"`
	TargetSize int      `json:"target_size"`
}

func (c Condition) String() string { return fmt.Sprintf("%s@%d", c.Strategy, c.TargetSize) }

// Less: 先按策略规范顺序，再按目标大小升序。
func (c Condition) Less(o Condition) bool {
	if c.Strategy != o.Strategy {
		return c.Strategy.Rank() < o.Strategy.Rank()
	}
	return c.TargetSize < o.TargetSize
}

// Conditions 生成策略 × 目标大小的笛卡尔积（规范顺序）。
func Conditions(strategies []Strategy, sizes []int) []Condition {
	out := make([]Condition, 0, len(strategies)*len(sizes))
	for _, s := range strategies {
		for _, k := range sizes {
			out = append(out, Condition{Strategy: s, TargetSize: k})
		}
	}
	return out
}
