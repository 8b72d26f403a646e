// Package generate serves the survey generation WebSocket endpoint.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
	"github.com/zhouzirui/z-survey/backend/internal/protocol"
	"github.com/zhouzirui/z-survey/backend/internal/service/ai"
	surveystore "github.com/zhouzirui/z-survey/backend/internal/service/survey"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
	maxMessageSize   = 1 << 20
	defaultQuestions = 5
	defaultFeedback  = "Please provide a better question"
)

// Generator 问卷生成能力，由 ai.Service 实现。
type Generator interface {
	GenerateStream(ctx context.Context, req ai.Request) (*schema.StreamReader[*schema.Message], error)
	Generate(ctx context.Context, req ai.Request) (survey.Draft, error)
	RegenerateQuestion(ctx context.Context, d survey.Draft, index int, feedback string) (survey.Draft, error)
}

// Store persists drafts on save_survey.
type Store interface {
	Save(ctx context.Context, d survey.Draft, prompt string) (surveystore.Record, error)
}

// WebSocketHandler 问卷生成 WebSocket 处理器。
type WebSocketHandler struct {
	gen      Generator
	store    Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the handler. A nil gen or store makes the
// corresponding requests answer with an error envelope.
func NewWebSocketHandler(gen Generator, store Store, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		gen:    gen,
		store:  store,
		logger: logger.With(zap.String("component", "generate_ws")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/survey/generate", h.handleWebSocket)
}

// client serialises writes; gorilla allows one concurrent writer.
type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *zap.Logger
}

func (c *client) send(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *client) sendError(message string) {
	if err := c.send(protocol.Error(message)); err != nil {
		c.logger.Warn("write error envelope failed", zap.Error(err))
	}
}

// handleWebSocket reads frames on one goroutine and processes them in
// order on the request goroutine, so replies are FIFO per connection while
// control frames keep being answered during long generations.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{
		conn:   conn,
		logger: h.logger.With(zap.String("conn_id", uuid.NewString())),
	}
	c.logger.Info("connection opened", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, c)

	if err := c.send(protocol.ConnectionEstablished("WebSocket connection established successfully.")); err != nil {
		c.logger.Warn("greeting failed", zap.Error(err))
		return
	}

	frames := make(chan []byte, 16)
	go func() {
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn("read error", zap.Error(err))
				}
				cancel()
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))

			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range frames {
		h.handleFrame(ctx, c, data)
	}
	c.logger.Info("connection closed")
}

func (h *WebSocketHandler) handleFrame(ctx context.Context, c *client, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		if !json.Valid(data) {
			c.sendError("Invalid JSON format")
			return
		}
		c.sendError("Invalid message: " + err.Error())
		return
	}

	switch env.Type {
	case protocol.TypeGenerateSurvey:
		h.handleGenerate(ctx, c, env)
	case protocol.TypeRegenerateQuestion:
		h.handleRegenerate(ctx, c, env)
	case protocol.TypeSaveSurvey:
		h.handleSave(ctx, c, env)
	default:
		c.sendError(fmt.Sprintf("Unknown message type: %s", env.Type))
	}
}

func (h *WebSocketHandler) handleGenerate(ctx context.Context, c *client, env protocol.Envelope) {
	if h.gen == nil {
		c.sendError("AI service unavailable")
		return
	}

	prompt := strings.TrimSpace(env.Prompt)
	if prompt == "" {
		c.sendError("Prompt is required")
		return
	}

	req := ai.Request{Prompt: prompt, NumQuestions: env.NumQuestions, Template: env.Template}
	if req.NumQuestions <= 0 {
		req.NumQuestions = defaultQuestions
	}
	if req.Template == "" {
		req.Template = ai.DefaultTemplate
	}

	if err := c.send(protocol.GenerationStarted("Survey generation started...")); err != nil {
		return
	}
	c.logger.Info("generating survey", zap.Int("num_questions", req.NumQuestions), zap.String("template", req.Template), zap.Bool("stream", env.StreamRequested()))

	var draft survey.Draft
	if env.StreamRequested() {
		var ok bool
		draft, ok = h.generateStreaming(ctx, c, req)
		if !ok {
			return
		}
	} else {
		var err error
		draft, err = h.gen.Generate(ctx, req)
		if err != nil {
			c.sendError(generationErrorMessage(err))
			return
		}
	}

	if err := c.send(protocol.GenerationComplete(draft)); err != nil {
		c.logger.Warn("write completion failed", zap.Error(err))
	}
}

// generateStreaming forwards model deltas as chunks and parses the joined
// text once the stream ends.
func (h *WebSocketHandler) generateStreaming(ctx context.Context, c *client, req ai.Request) (survey.Draft, bool) {
	stream, err := h.gen.GenerateStream(ctx, req)
	if errors.Is(err, ai.ErrStreamDisabled) {
		draft, err := h.gen.Generate(ctx, req)
		if err != nil {
			c.sendError(generationErrorMessage(err))
			return survey.Draft{}, false
		}
		return draft, true
	}
	if err != nil {
		c.sendError(generationErrorMessage(err))
		return survey.Draft{}, false
	}

	text, err := ai.Collect(stream, func(delta string) error {
		return c.send(protocol.GenerationChunk(delta))
	})
	if err != nil {
		c.logger.Warn("stream interrupted", zap.Error(err))
		c.sendError(generationErrorMessage(err))
		return survey.Draft{}, false
	}

	draft, err := ai.ParseDraft(text)
	if err != nil {
		c.sendError(generationErrorMessage(err))
		return survey.Draft{}, false
	}
	return draft, true
}

func (h *WebSocketHandler) handleRegenerate(ctx context.Context, c *client, env protocol.Envelope) {
	index := *env.QuestionIndex
	if err := c.send(protocol.RegenerationStarted(index, "Question regeneration started...")); err != nil {
		return
	}

	if h.gen == nil {
		c.sendError("AI service unavailable")
		return
	}
	if !env.Survey.HasQuestion(index) {
		c.sendError(fmt.Sprintf("Invalid question index: %d. Survey has %d questions.", index, len(env.Survey.Questions)))
		return
	}

	feedback := strings.TrimSpace(env.Feedback)
	if feedback == "" {
		feedback = defaultFeedback
	}

	updated, err := h.gen.RegenerateQuestion(ctx, *env.Survey, index, feedback)
	if err != nil {
		c.logger.Warn("regeneration failed", zap.Int("question_index", index), zap.Error(err))
		c.sendError("Error regenerating question: " + err.Error())
		return
	}

	if err := c.send(protocol.RegenerationComplete(updated, index)); err != nil {
		c.logger.Warn("write regeneration failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) handleSave(ctx context.Context, c *client, env protocol.Envelope) {
	if h.store == nil {
		c.sendError("Survey storage unavailable")
		return
	}

	record, err := h.store.Save(ctx, *env.Survey, env.Prompt)
	if err != nil {
		c.logger.Warn("save failed", zap.Error(err))
		if errors.Is(err, survey.ErrInvalidDraft) {
			c.sendError("Invalid survey: " + err.Error())
			return
		}
		c.sendError("Error saving survey: " + err.Error())
		return
	}

	saved := protocol.SavedSurvey{ID: record.ID, PublicID: record.PublicID, Title: record.Title}
	msg := fmt.Sprintf("Survey %q has been saved successfully!", record.Title)
	if err := c.send(protocol.SurveySaved(saved, msg)); err != nil {
		c.logger.Warn("write save ack failed", zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func generationErrorMessage(err error) string {
	if errors.Is(err, ai.ErrInvalidResponse) {
		return "Response parsing error: " + err.Error()
	}
	return "Error generating survey: " + err.Error()
}
