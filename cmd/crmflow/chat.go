package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/agent"
	"github.com/BaSui01/crmflow/history"
	"github.com/BaSui01/crmflow/internal/ctxkeys"
	"github.com/BaSui01/crmflow/types"
)

// =============================================================================
// 💬 chat 命令
// =============================================================================

// apology 生成调用失败时展示给用户的回复
const apology = "Xin lỗi, hệ thống đang gặp sự cố. Vui lòng thử lại sau."

// queryRunner 由 *agent.Pipeline 实现
type queryRunner interface {
	Run(ctx context.Context, query string, history []types.Message) (agent.RouterState, error)
}

// transcript 保存对话上下文，供下一轮查询作为显式历史
type transcript interface {
	Recent(ctx context.Context) ([]types.Message, error)
	Append(ctx context.Context, agent string, msgs ...types.Message) error
}

// memoryTranscript 进程内历史，未启用会话存储时使用
type memoryTranscript struct {
	window int
	msgs   []types.Message
}

func (m *memoryTranscript) Recent(context.Context) ([]types.Message, error) {
	if m.window > 0 && len(m.msgs) > m.window {
		return m.msgs[len(m.msgs)-m.window:], nil
	}
	return m.msgs, nil
}

func (m *memoryTranscript) Append(_ context.Context, _ string, msgs ...types.Message) error {
	m.msgs = append(m.msgs, msgs...)
	return nil
}

// storeTranscript 把历史写入 history.Store 中的一个会话
type storeTranscript struct {
	store          *history.Store
	conversationID string
	window         int
}

func (s *storeTranscript) Recent(ctx context.Context) ([]types.Message, error) {
	return s.store.Recent(ctx, s.conversationID, s.window)
}

func (s *storeTranscript) Append(ctx context.Context, agent string, msgs ...types.Message) error {
	return s.store.Append(ctx, s.conversationID, agent, msgs...)
}

type chatOptions struct {
	conversation string
	timeout      time.Duration
}

func newChatCmd(global *globalOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive CRM chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChatCmd(cmd, global, opts)
		},
	}
	cmd.Flags().StringVar(&opts.conversation, "conversation", "", "Conversation id to resume or create (requires history.enabled)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Per-query timeout")
	return cmd
}

func runChatCmd(cmd *cobra.Command, global *globalOptions, opts *chatOptions) error {
	cfg, logger, err := setup(global)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	client, err := rt.llmClient()
	if err != nil {
		return err
	}
	pipeline, err := rt.pipeline(client)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var tr transcript = &memoryTranscript{window: cfg.History.Window}
	store, err := rt.historyStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		conv, err := store.Ensure(ctx, opts.conversation)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), infoText("conversation: "+conv.ID))
		ctx = ctxkeys.WithConversationID(ctx, conv.ID)
		tr = &storeTranscript{store: store, conversationID: conv.ID, window: cfg.History.Window}
	} else if opts.conversation != "" {
		logger.Warn("--conversation ignored, history store disabled")
	}

	return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), pipeline, tr, opts.timeout, logger)
}

// chatLoop 逐行读取用户输入直到 exit/quit 或 EOF
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, runner queryRunner, tr transcript, timeout time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "=== CRM Chatbot CLI ===")
	for {
		fmt.Fprint(out, "User: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if isExit(query) {
			return nil
		}
		if query == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		past, err := tr.Recent(ctx)
		if err != nil {
			logger.Warn("history unavailable", zap.Error(err))
			past = nil
		}

		queryCtx := ctxkeys.WithQueryID(ctx, uuid.NewString())
		cancel := func() {}
		if timeout > 0 {
			queryCtx, cancel = context.WithTimeout(queryCtx, timeout)
		}
		state, err := runner.Run(queryCtx, query, past)
		cancel()

		name := state.ChosenAgent()
		if name == "" {
			name = agent.GeneralDomain
		}
		if err != nil {
			logger.Error("query failed", zap.String("agent", name), zap.Error(err))
			fmt.Fprintf(out, "%s %s\n", botPrefix(name), apology)
			continue
		}

		fmt.Fprintf(out, "%s %s\n", botPrefix(name), state.Answer())
		turn := []types.Message{types.NewUserMessage(query), types.NewAssistantMessage(state.Answer())}
		if err := tr.Append(ctx, name, turn...); err != nil {
			logger.Warn("failed to save turn", zap.Error(err))
		}
	}
}

func isExit(s string) bool {
	switch strings.ToLower(s) {
	case "exit", "quit":
		return true
	}
	return false
}
