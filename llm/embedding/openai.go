package embedding

import (
	"context"
	"sort"
)

// openAIBackend POST /v1/embeddings，Bearer 认证
type openAIBackend struct{}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (openAIBackend) embed(ctx context.Context, p *provider, key string, texts []string, _ task) ([][]float64, error) {
	var resp openAIEmbedResponse
	err := p.post(ctx, "/v1/embeddings",
		map[string]string{"Authorization": "Bearer " + key},
		openAIEmbedRequest{Input: texts, Model: p.cfg.Model, Dimensions: p.cfg.Dimensions},
		&resp)
	if err != nil {
		return nil, err
	}

	// data 按 index 排序，不依赖返回顺序
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
