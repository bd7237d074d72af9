package repo

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// Codec кодирует бинарные поля записей: msgpack, сжатый zstd.
//
// Используется для результатов узлов и финальной VFS run: они большие
// (HTML, файлы VFS) и читаются только целиком.
//
// Безопасен для одновременного использования.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec создаёт Codec.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode сериализует v.
func (c *Codec) Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return c.enc.EncodeAll(data, nil), nil
}

// Decode десериализует data в v.
func (c *Codec) Decode(data []byte, v any) error {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("zstd decode: %w", err)
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("msgpack decode: %w", err)
	}
	return nil
}

// Close освобождает ресурсы zstd.
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// runPayload — бинарная часть run.
type runPayload struct {
	NodeResults []payloadNode     `msgpack:"node_results"`
	FinalVFS    map[string]string `msgpack:"final_vfs,omitempty"`
}

// payloadNode — NodeResult в бинарном виде.
//
// Input и Output хранятся как JSON: так после чтения они имеют те же
// типы (float64, map[string]any), что и у свежего run.
type payloadNode struct {
	NodeID      string            `msgpack:"node_id"`
	NodeType    string            `msgpack:"node_type"`
	Input       []byte            `msgpack:"input"`
	Output      []byte            `msgpack:"output"`
	TokensUsed  int               `msgpack:"tokens_used"`
	CostUSD     float64           `msgpack:"cost_usd"`
	LatencyMs   int64             `msgpack:"latency_ms"`
	Error       string            `msgpack:"error,omitempty"`
	ToolCalls   []payloadToolCall `msgpack:"tool_calls,omitempty"`
	VFSSnapshot map[string]string `msgpack:"vfs_snapshot,omitempty"`
}

type payloadToolCall struct {
	ID         string `msgpack:"id"`
	ToolName   string `msgpack:"tool_name"`
	Input      []byte `msgpack:"input"`
	TextOutput string `msgpack:"text_output"`
	Iteration  int    `msgpack:"iteration"`
}

// EncodeRun кодирует результаты узлов и финальную VFS run.
func (c *Codec) EncodeRun(run *domain.Run) ([]byte, error) {
	payload := runPayload{
		NodeResults: make([]payloadNode, 0, len(run.NodeResults)),
		FinalVFS:    run.FinalVFS,
	}
	for _, nr := range run.NodeResults {
		input, err := json.Marshal(nr.Input)
		if err != nil {
			return nil, fmt.Errorf("marshal node %s input: %w", nr.NodeID, err)
		}
		output, err := json.Marshal(nr.Output)
		if err != nil {
			return nil, fmt.Errorf("marshal node %s output: %w", nr.NodeID, err)
		}
		node := payloadNode{
			NodeID:      nr.NodeID,
			NodeType:    string(nr.NodeType),
			Input:       input,
			Output:      output,
			TokensUsed:  nr.TokensUsed,
			CostUSD:     nr.CostUSD,
			LatencyMs:   nr.LatencyMs,
			Error:       nr.Error,
			VFSSnapshot: nr.VFSSnapshot,
		}
		for _, tc := range nr.ToolCalls {
			node.ToolCalls = append(node.ToolCalls, payloadToolCall{
				ID:         tc.ID,
				ToolName:   tc.ToolName,
				Input:      tc.Input,
				TextOutput: tc.TextOutput,
				Iteration:  tc.Iteration,
			})
		}
		payload.NodeResults = append(payload.NodeResults, node)
	}
	return c.Encode(payload)
}

// DecodeRun восстанавливает результаты узлов и финальную VFS в run.
func (c *Codec) DecodeRun(data []byte, run *domain.Run) error {
	if len(data) == 0 {
		run.NodeResults = []domain.NodeResult{}
		return nil
	}

	var payload runPayload
	if err := c.Decode(data, &payload); err != nil {
		return err
	}

	run.FinalVFS = payload.FinalVFS
	run.NodeResults = make([]domain.NodeResult, 0, len(payload.NodeResults))
	for _, node := range payload.NodeResults {
		nr := domain.NodeResult{
			NodeID:      node.NodeID,
			NodeType:    domain.NodeType(node.NodeType),
			TokensUsed:  node.TokensUsed,
			CostUSD:     node.CostUSD,
			LatencyMs:   node.LatencyMs,
			Error:       node.Error,
			VFSSnapshot: node.VFSSnapshot,
		}
		if err := unmarshalAny(node.Input, &nr.Input); err != nil {
			return fmt.Errorf("unmarshal node %s input: %w", node.NodeID, err)
		}
		if err := unmarshalAny(node.Output, &nr.Output); err != nil {
			return fmt.Errorf("unmarshal node %s output: %w", node.NodeID, err)
		}
		for _, tc := range node.ToolCalls {
			nr.ToolCalls = append(nr.ToolCalls, domain.ToolCallTrace{
				ID:         tc.ID,
				ToolName:   tc.ToolName,
				Input:      json.RawMessage(tc.Input),
				TextOutput: tc.TextOutput,
				Iteration:  tc.Iteration,
			})
		}
		run.NodeResults = append(run.NodeResults, nr)
	}
	return nil
}

func unmarshalAny(data []byte, v *any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
