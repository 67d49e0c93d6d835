package toolindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/types"
)

// Embedder is satisfied by *llm.Client.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
}

// Index keeps one embedding per tool and returns the TopK closest tools for a
// query. Domains at or under TopK pass through untouched. Safe for
// concurrent use.
type Index struct {
	embedder Embedder
	topK     int
	logger   *zap.Logger

	mu      sync.RWMutex
	vectors map[string][]float64 // keyed by ToolText
}

// New creates an Index. topK <= 0 disables shortlisting.
func New(embedder Embedder, topK int, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		embedder: embedder,
		topK:     topK,
		logger:   logger.With(zap.String("component", "toolindex")),
		vectors:  make(map[string][]float64),
	}
}

// ToolText is the text embedded for a tool: name, description and
// parameter names.
func ToolText(t types.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString(t.Name)
	if t.Description != "" {
		b.WriteString(": ")
		b.WriteString(t.Description)
	}
	if names := t.Parameters.PropertyNames(); len(names) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Size reports how many tool embeddings are cached.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Select returns the TopK tools most similar to query, best first. Ties keep
// the domain order.
func (ix *Index) Select(ctx context.Context, query string, tools []types.ToolDescriptor) ([]types.ToolDescriptor, error) {
	if ix.topK <= 0 || len(tools) <= ix.topK {
		return tools, nil
	}

	texts := make([]string, len(tools))
	for i, t := range tools {
		texts[i] = ToolText(t)
	}
	if err := ix.warm(ctx, texts); err != nil {
		return nil, err
	}

	q, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(tools))
	ix.mu.RLock()
	for i, text := range texts {
		scores[i] = scored{idx: i, score: cosineSimilarity(q, ix.vectors[text])}
	}
	ix.mu.RUnlock()

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	out := make([]types.ToolDescriptor, ix.topK)
	for i := range out {
		out[i] = tools[scores[i].idx]
	}
	ix.logger.Debug("tools shortlisted",
		zap.Int("candidates", len(tools)),
		zap.Int("selected", len(out)),
		zap.String("best", out[0].Name),
	)
	return out, nil
}

// warm embeds every text that has no cached vector yet, in one batch.
func (ix *Index) warm(ctx context.Context, texts []string) error {
	ix.mu.RLock()
	var missing []string
	seen := make(map[string]struct{})
	for _, text := range texts {
		if _, ok := ix.vectors[text]; ok {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		missing = append(missing, text)
	}
	ix.mu.RUnlock()
	if len(missing) == 0 {
		return nil
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		return fmt.Errorf("embed tools: %w", err)
	}
	if len(vectors) != len(missing) {
		return fmt.Errorf("embed tools: got %d vectors for %d tools", len(vectors), len(missing))
	}

	ix.mu.Lock()
	for i, text := range missing {
		ix.vectors[text] = vectors[i]
	}
	ix.mu.Unlock()
	ix.logger.Info("tool embeddings cached", zap.Int("added", len(missing)))
	return nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
