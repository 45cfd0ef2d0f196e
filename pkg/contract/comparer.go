package contract

//go:generate mockgen -source=comparer.go -destination=mock_contract/comparer_mock.go -package=mock_contract

import "context"

// Comparer: 下游相似度比较（不透明协作者）。流水线只在调用外侧计时。
// 约束：
// 1) 可并发调用，不持有跨调用的可变状态；
// 2) 返回值语义由实现决定（余弦、Jaccard、LCS 等），流水线不解释；
// 3) ctx 取消时尽快返回。
type Comparer interface {
	Name() string
	Compare(ctx context.Context, a, b Sequence) (float64, error)
}
