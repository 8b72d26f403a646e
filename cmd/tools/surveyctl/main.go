package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/config"
	"github.com/zhouzirui/z-survey/backend/internal/logging"
	"github.com/zhouzirui/z-survey/backend/internal/session"
)

const help = `commands:
  <text>       describe a survey to generate (or feedback while a question is selected)
  /regen N     select question N for regeneration
  /send        regenerate the selected question with the default feedback
  /cancel      leave the regeneration flow
  /save        save the current survey
  /show        print the current survey
  /status      print session state
  /quit        close the session and exit`

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		color.Red("配置加载失败: %v", err)
		os.Exit(1)
	}

	endpoint := flag.String("url", cfg.Client.Endpoint, "生成服务 WebSocket 地址")
	questions := flag.Int("questions", cfg.Client.NumQuestions, "每次生成的问题数量")
	template := flag.String("template", cfg.Client.Template, "问卷模板")
	logFile := flag.String("log", cfg.Log.File, "日志文件路径，留空则不记录")
	flag.Parse()

	logger := logging.NewFileOnly(config.LogConfig{File: *logFile})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessCfg := session.Config{
		Endpoint:         *endpoint,
		NumQuestions:     *questions,
		Template:         *template,
		DefaultFeedback:  cfg.Client.DefaultFeedback,
		HandshakeTimeout: cfg.Client.HandshakeTimeout,
	}

	err = session.Run(ctx, sessCfg, logger, func(s *session.Session) error {
		return repl(ctx, s, os.Stdin, color.Output)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session ended with error", zap.Error(err))
		color.Red("会话异常结束: %v", err)
		os.Exit(1)
	}
}

// repl drives s from line-oriented input until /quit, EOF, ctx cancellation
// or a lost connection.
func repl(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	r := newRenderer(out)
	unsubscribe := s.Subscribe(r.render)
	defer unsubscribe()
	r.render(s.Snapshot())

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := execute(s, strings.TrimSpace(line), out); quit {
				return nil
			}
			if s.Snapshot().Phase == session.PhaseDisconnected {
				return nil
			}
		}
	}
}

// execute runs one input line and reports whether the user asked to quit.
// Rejections surface through the snapshot notice, so their errors are dropped.
func execute(s *session.Session, line string, out io.Writer) bool {
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		if s.Snapshot().Phase == session.PhaseAwaitingFeedback {
			_ = s.SubmitFeedback(line)
		} else {
			_ = s.SubmitPrompt(line)
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/regen":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: /regen N")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(out, "invalid question number %q\n", fields[1])
			return false
		}
		_ = s.SelectQuestion(n - 1)
	case "/send":
		_ = s.SubmitFeedback("")
	case "/cancel":
		_ = s.CancelFeedback()
	case "/save":
		_ = s.Save()
	case "/show":
		snap := s.Snapshot()
		if snap.Draft == nil {
			fmt.Fprintln(out, "no survey yet")
			return false
		}
		writeDraft(out, *snap.Draft, snap.LastRegenerated)
	case "/status":
		writeStatus(out, s.Snapshot())
	default:
		fmt.Fprintln(out, help)
	}
	return false
}
