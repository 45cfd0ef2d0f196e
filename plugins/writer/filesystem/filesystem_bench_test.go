package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// BenchmarkWrite 不同输入尺寸下的写入性能。
func BenchmarkWrite(b *testing.B) {
	sizes := []int{1024, 1024 * 1024}
	for _, sz := range sizes {
		b.Run(fmt.Sprintf("size=%d", sz), func(b *testing.B) {
			data := bytes.Repeat([]byte("a"), sz)
			dir := b.TempDir()
			w, err := New(&Options{OutputDir: dir})
			if err != nil {
				b.Fatalf("new writer: %v", err)
			}
			id := contract.ArtifactID("records.jsonl")
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := w.Write(ctx, id, bytes.NewReader(data)); err != nil {
					b.Fatalf("write: %v", err)
				}
			}
		})
	}
}
