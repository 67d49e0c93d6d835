package crm

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/internal/server"
)

// =============================================================================
// 🧪 Mock CRM 服务
// =============================================================================

// MockEntities 是 mock 服务支持的实体集合
var MockEntities = []string{"leads", "accounts"}

// MockStore 内存实体存储，按实体类型分区，可并发使用
type MockStore struct {
	mu      sync.RWMutex
	records map[string]map[string]map[string]any
	order   map[string][]string
	now     func() time.Time
}

// NewMockStore 创建空存储
func NewMockStore() *MockStore {
	s := &MockStore{now: time.Now}
	s.Clear()
	return s
}

// Clear 清空所有实体
func (s *MockStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]map[string]map[string]any, len(MockEntities))
	s.order = make(map[string][]string, len(MockEntities))
	for _, e := range MockEntities {
		s.records[e] = map[string]map[string]any{}
	}
}

// Create 保存记录并分配 id
func (s *MockStore) Create(entity string, fields map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := copyFields(fields)
	id := uuid.NewString()
	rec["id"] = id
	rec["createdAt"] = s.now().UTC().Format(time.RFC3339)
	s.records[entity][id] = rec
	s.order[entity] = append(s.order[entity], id)
	return copyFields(rec)
}

// List 按创建顺序返回记录
func (s *MockStore) List(entity string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, 0, len(s.order[entity]))
	for _, id := range s.order[entity] {
		out = append(out, copyFields(s.records[entity][id]))
	}
	return out
}

// Get 返回单条记录
func (s *MockStore) Get(entity, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entity][id]
	if !ok {
		return nil, false
	}
	return copyFields(rec), true
}

// Update 合并字段，id 与 createdAt 不可修改
func (s *MockStore) Update(entity, id string, fields map[string]any) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[entity][id]
	if !ok {
		return nil, false
	}
	for k, v := range fields {
		if k == "id" || k == "createdAt" {
			continue
		}
		rec[k] = v
	}
	return copyFields(rec), true
}

// Delete 删除记录
func (s *MockStore) Delete(entity, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[entity][id]; !ok {
		return false
	}
	delete(s.records[entity], id)
	ids := s.order[entity]
	for i, v := range ids {
		if v == id {
			s.order[entity] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return true
}

// Counts 返回每种实体的记录数
func (s *MockStore) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.records))
	for e, recs := range s.records {
		out[e] = len(recs)
	}
	return out
}

// NewMockHandler 构建 mock CRM 的路由：每种实体提供
// POST/GET /{entity}、GET/PUT/DELETE /{entity}/{id}，另有 /health 与
// DELETE /clear-all。collector 可以为 nil。
func NewMockHandler(store *MockStore, collector *metrics.Collector, logger *zap.Logger) http.Handler {
	if store == nil {
		store = NewMockStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mock_crm"))
	h := &mockHandler{store: store, logger: logger}

	mux := http.NewServeMux()
	for _, entity := range MockEntities {
		e := entity
		mux.HandleFunc("POST /"+e, func(w http.ResponseWriter, r *http.Request) { h.create(w, r, e) })
		mux.HandleFunc("GET /"+e, func(w http.ResponseWriter, r *http.Request) { h.list(w, r, e) })
		mux.HandleFunc("GET /"+e+"/{id}", func(w http.ResponseWriter, r *http.Request) { h.get(w, r, e) })
		mux.HandleFunc("PUT /"+e+"/{id}", func(w http.ResponseWriter, r *http.Request) { h.update(w, r, e) })
		mux.HandleFunc("DELETE /"+e+"/{id}", func(w http.ResponseWriter, r *http.Request) { h.delete(w, r, e) })
	}
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("DELETE /clear-all", h.clearAll)
	mux.Handle("GET /metrics", metrics.Handler())

	return server.Chain(mux,
		server.Recovery(logger),
		server.RequestID(),
		server.RequestLogger(logger),
		server.Metrics(collector),
	)
}

type mockHandler struct {
	store  *MockStore
	logger *zap.Logger
}

func (h *mockHandler) create(w http.ResponseWriter, r *http.Request, entity string) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec := h.store.Create(entity, fields)
	h.logger.Debug("record created", zap.String("entity", entity), zap.Any("id", rec["id"]))
	writeJSON(w, http.StatusOK, rec)
}

func (h *mockHandler) list(w http.ResponseWriter, _ *http.Request, entity string) {
	items := h.store.List(entity)
	writeJSON(w, http.StatusOK, map[string]any{"list": items, "total": len(items)})
}

func (h *mockHandler) get(w http.ResponseWriter, r *http.Request, entity string) {
	rec, ok := h.store.Get(entity, r.PathValue("id"))
	if !ok {
		notFound(w, entity)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *mockHandler) update(w http.ResponseWriter, r *http.Request, entity string) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, ok := h.store.Update(entity, r.PathValue("id"), fields)
	if !ok {
		notFound(w, entity)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *mockHandler) delete(w http.ResponseWriter, r *http.Request, entity string) {
	id := r.PathValue("id")
	if !h.store.Delete(entity, id) {
		notFound(w, entity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (h *mockHandler) health(w http.ResponseWriter, _ *http.Request) {
	counts := h.store.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	body := map[string]any{"status": "ok"}
	for _, k := range keys {
		body[k] = counts[k]
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *mockHandler) clearAll(w http.ResponseWriter, _ *http.Request) {
	h.store.Clear()
	h.logger.Info("mock crm cleared")
	writeJSON(w, http.StatusOK, map[string]any{"message": "all data cleared"})
}

func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid JSON body"})
		return nil, false
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, true
}

func notFound(w http.ResponseWriter, entity string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": entity + " not found"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func copyFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
