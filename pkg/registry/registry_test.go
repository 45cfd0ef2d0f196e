package registry

import (
	"encoding/json"
	"fmt"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil raw: %v %+v", err, o)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("valid raw: %v %+v", err, o)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatal("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口：合法选项成功，未知字段报错。
func TestFactories(t *testing.T) {
	unknown := json.RawMessage(`{"x":1}`)
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{"include":["**/*.wat"]}`)); err != nil {
			t.Fatalf("valid options: %v", err)
		}
		if _, err := Reader["fs"](unknown); err == nil {
			t.Fatal("unknown field should fail")
		}
		if _, err := Reader["fs"](json.RawMessage(`{"include":["[bad"]}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("bad glob: expect ErrInvalidInput, got %v", err)
		}
	})
	t.Run("tokenizer", func(t *testing.T) {
		for _, name := range Names(Tokenizer) {
			tk, err := Tokenizer[name](nil)
			if err != nil || tk == nil {
				t.Fatalf("%s: %v", name, err)
			}
			if _, err := Tokenizer[name](unknown); err == nil {
				t.Fatalf("%s: unknown field should fail", name)
			}
		}
	})
	t.Run("comparer", func(t *testing.T) {
		want := []string{"cosine", "jaccard", "kl", "lcs", "manhattan", "overlap"}
		if got := Names(Comparer); !slices.Equal(got, want) {
			t.Fatalf("names: %v", got)
		}
		for _, name := range want {
			c, err := Comparer[name](json.RawMessage(`{}`))
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if c.Name() != name {
				t.Fatalf("%s: Name() = %q", name, c.Name())
			}
			if _, err := Comparer[name](unknown); err == nil {
				t.Fatalf("%s: unknown field should fail", name)
			}
		}
		if _, err := Comparer["cosine"](json.RawMessage(`{"min_n":3,"max_n":2}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("bad range: expect ErrInvalidInput, got %v", err)
		}
	})
	t.Run("reporter", func(t *testing.T) {
		r, err := Reporter["table"](json.RawMessage(`{"format":"markdown"}`))
		if err != nil {
			t.Fatalf("markdown: %v", err)
		}
		if r.Ext() != "md" {
			t.Fatalf("ext: %q", r.Ext())
		}
		if _, err := Reporter["table"](unknown); err == nil {
			t.Fatal("unknown field should fail")
		}
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		if _, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, tmp))); err != nil {
			t.Fatalf("valid options: %v", err)
		}
		if _, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp))); err == nil {
			t.Fatal("unknown field should fail")
		}
		if _, err := Writer["fs"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("missing output_dir: expect ErrInvalidInput, got %v", err)
		}
	})
}
