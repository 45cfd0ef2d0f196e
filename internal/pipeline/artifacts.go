package pipeline

import (
	"context"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/tamadalab/wasm-wat-trimming/internal/diag"
	"github.com/tamadalab/wasm-wat-trimming/pkg/contract"
)

// RecordsArtifact 为比较记录边车的工件名。
const RecordsArtifact contract.ArtifactID = "records.jsonl"

// writeArtifacts 渲染全部结果表并写出，随后流式写出 records.jsonl。
func writeArtifacts(ctx context.Context, comp Components, s *contract.Summary, logger *diag.Logger) error {
	for _, t := range contract.Tables() {
		id := contract.ArtifactID(string(t) + "." + comp.Reporter.Ext())
		ptimer := logger.StartWith("reporter", "render", string(id), "")
		r, err := comp.Reporter.Render(ctx, t, s)
		if err != nil {
			fail(logger, "reporter", "render failed", err, string(id), "")
			return errors.Wrapf(err, "reporter render %s", t)
		}
		ptimer.Finish("render", 0)
		diag.IncOp("reporter", "finish", "success")

		wtimer := logger.StartWith("writer", "write", string(id), "")
		if err := comp.Writer.Write(ctx, id, r); err != nil {
			fail(logger, "writer", "write failed", err, string(id), "")
			return errors.Wrapf(err, "writer write %s", id)
		}
		wtimer.Finish("write", 1)
		diag.IncOp("writer", "finish", "success")
	}

	// 通过管道流式写出，避免整体缓冲
	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		enc.SetEscapeHTML(false)
		for i := range s.Records {
			if err := enc.Encode(&s.Records[i]); err != nil {
				_ = pw.CloseWithError(err)
				return
			}
		}
		_ = pw.Close()
	}()
	wtimer := logger.StartWith("writer", "write", string(RecordsArtifact), "")
	if err := comp.Writer.Write(ctx, RecordsArtifact, pr); err != nil {
		_ = pr.CloseWithError(err)
		fail(logger, "writer", "write failed", err, string(RecordsArtifact), "")
		return errors.Wrap(err, "writer write(jsonl)")
	}
	wtimer.Finish("write", int64(len(s.Records)))
	diag.IncOp("writer", "finish", "success")
	return nil
}
