package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/crmflow/internal/database"
	"github.com/BaSui01/crmflow/internal/metrics"
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 💬 会话历史存储
// =============================================================================

// ErrConversationNotFound 会话不存在
var ErrConversationNotFound = errors.New("conversation not found")

// appendRetries 写入事务遇到死锁等可重试错误时的尝试次数
const appendRetries = 3

// maxTitleRunes 由首条用户消息生成标题时保留的字符数
const maxTitleRunes = 60

// Store 以 conversations / messages 两张表保存对话，可并发使用。
type Store struct {
	pool    *database.PoolManager
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewStore 在已建立的连接池上创建存储，并迁移表结构。collector 可以为 nil。
func NewStore(pool *database.PoolManager, collector *metrics.Collector, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate history tables: %w", err)
	}
	return &Store{
		pool:    pool,
		metrics: collector,
		logger:  logger.With(zap.String("component", "history")),
	}, nil
}

// Open 按驱动名连接数据库并创建存储
func Open(driver, dsn string, poolCfg database.PoolConfig, collector *metrics.Collector, logger *zap.Logger) (*Store, error) {
	db, err := database.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	pool, err := database.NewPoolManager(db, poolCfg, collector, logger)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(pool, collector, logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	return store, nil
}

// Close 关闭底层连接池
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) observe(op string, start time.Time) {
	s.metrics.RecordDBQuery("history", op, time.Since(start))
}

// Create 新建会话。title 可以为空，首条用户消息写入时补全。
func (s *Store) Create(ctx context.Context, title string) (*Conversation, error) {
	defer s.observe("create", time.Now())

	conv := &Conversation{ID: uuid.NewString(), Title: title}
	if err := s.pool.DB().WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug("conversation created", zap.String("conversation_id", conv.ID))
	return conv, nil
}

// Get 返回会话（不含消息）
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	defer s.observe("get", time.Now())

	var conv Conversation
	err := s.pool.DB().WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// Ensure 返回 id 对应的会话，不存在时以该 id 创建。id 为空时新建。
func (s *Store) Ensure(ctx context.Context, id string) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return s.Create(ctx, "")
	}
	conv, err := s.Get(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	defer s.observe("create", time.Now())
	conv = &Conversation{ID: id}
	if err := s.pool.DB().WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// List 按最近更新倒序返回会话
func (s *Store) List(ctx context.Context, limit int) ([]Conversation, error) {
	defer s.observe("list", time.Now())

	q := s.pool.DB().WithContext(ctx).Order("updated_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var convs []Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Delete 删除会话及其消息
func (s *Store) Delete(ctx context.Context, id string) error {
	defer s.observe("delete", time.Now())

	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Conversation{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
}

// Append 把一轮对话写入会话。只保存 user 与 assistant 消息；agent 记在
// assistant 消息上。会话标题为空时取首条用户消息。
func (s *Store) Append(ctx context.Context, conversationID, agent string, msgs ...types.Message) error {
	defer s.observe("append", time.Now())

	rows := make([]Message, 0, len(msgs))
	var firstUser string
	for _, m := range msgs {
		if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
			continue
		}
		row := Message{
			ConversationID: conversationID,
			Role:           string(m.Role),
			Content:        m.Content,
		}
		if m.Role == types.RoleAssistant {
			row.Agent = agent
		} else if firstUser == "" {
			firstUser = m.Content
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.pool.WithTransactionRetry(ctx, appendRetries, func(tx *gorm.DB) error {
		var conv Conversation
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		updates := map[string]any{"updated_at": time.Now()}
		if conv.Title == "" && firstUser != "" {
			updates["title"] = truncateRunes(firstUser, maxTitleRunes)
		}
		return tx.Model(&conv).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("append to conversation %s: %w", conversationID, err)
	}
	return nil
}

// Recent 按写入顺序返回会话最近的 limit 条消息；limit <= 0 返回全部。
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]types.Message, error) {
	defer s.observe("recent", time.Now())

	q := s.pool.DB().WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Message
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make([]types.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.ToMessage()
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
