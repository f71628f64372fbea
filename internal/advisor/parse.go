package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"consensus-trader/internal/proposal"
)

type batchPayload struct {
	Analysis string              `json:"analysis"`
	Trades   []proposal.Proposal `json:"trades"`
}

// ParseBatch 从模型输出中提取JSON并解析为建议集。
// 模型经常把JSON包在 markdown 代码块或附加说明文字里，先做清理。
func ParseBatch(sourceID, content string) (proposal.Batch, error) {
	cleaned := stripCodeFences(content)

	jsonPayload, err := extractJSON(cleaned)
	if err != nil {
		return proposal.Batch{}, err
	}

	var payload batchPayload
	if err := json.Unmarshal(jsonPayload, &payload); err != nil {
		return proposal.Batch{}, fmt.Errorf("解析建议JSON失败: %w", err)
	}

	batch := proposal.Batch{
		SourceID:  sourceID,
		Analysis:  payload.Analysis,
		Proposals: make([]proposal.Proposal, 0, len(payload.Trades)),
	}

	for i, trade := range payload.Trades {
		normalized, err := trade.Normalize()
		if err != nil {
			return proposal.Batch{}, fmt.Errorf("trades[%d]: %w", i, err)
		}
		if err := normalized.Validate(); err != nil {
			return proposal.Batch{}, fmt.Errorf("trades[%d]: %w", i, err)
		}
		normalized.SourceID = sourceID
		batch.Proposals = append(batch.Proposals, normalized)
	}

	return batch, nil
}

func stripCodeFences(content string) string {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
