package embedding

import (
	"context"
	"fmt"
)

// geminiBackend 走 batchEmbedContents，单条查询也用批量端点；
// 认证使用 x-goog-api-key 头
type geminiBackend struct{}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

func geminiTaskType(t task) string {
	if t == taskQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

func (geminiBackend) embed(ctx context.Context, p *provider, key string, texts []string, t task) ([][]float64, error) {
	model := p.cfg.Model
	reqs := make([]geminiEmbedRequest, len(texts))
	for i, text := range texts {
		reqs[i] = geminiEmbedRequest{
			Model:                "models/" + model,
			Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
			TaskType:             geminiTaskType(t),
			OutputDimensionality: p.cfg.Dimensions,
		}
	}

	var resp geminiBatchResponse
	err := p.post(ctx, fmt.Sprintf("/models/%s:batchEmbedContents", model),
		map[string]string{"x-goog-api-key": key},
		geminiBatchRequest{Requests: reqs},
		&resp)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
