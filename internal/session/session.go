// Package session is the operator-side controller of a survey generation
// conversation. A Session owns one WebSocket connection, interprets the
// streaming protocol, and exposes its state to a rendering layer through
// immutable snapshots.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/model/chat"
	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
	"github.com/zhouzirui/z-survey/backend/internal/protocol"
)

const defaultFeedback = "Please provide a better question"

// Config 会话配置。
type Config struct {
	Endpoint         string
	NumQuestions     int
	Template         string
	DefaultFeedback  string
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.NumQuestions <= 0 {
		c.NumQuestions = 5
	}
	if strings.TrimSpace(c.Template) == "" {
		c.Template = "general"
	}
	if strings.TrimSpace(c.DefaultFeedback) == "" {
		c.DefaultFeedback = defaultFeedback
	}
	return c
}

// Option customises a Session.
type Option func(*Session)

// WithDialer replaces the WebSocket dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// Snapshot is a consistent, detached view of a session.
type Snapshot struct {
	// Seq increases with every mutation.
	Seq             uint64
	ID              string
	Phase           Phase
	Connected       bool
	Transcript      []chat.Entry
	AccumulatedText string
	Draft           *survey.Draft
	DraftPrompt     string
	Target          int
	HasTarget       bool
	Feedback        string
	Save            SaveStatus
	Notice          string
	LastRegenerated int
}

// Session 单个操作员视图的会话状态。所有事件都经由 apply 串行处理。
type Session struct {
	id     string
	cfg    Config
	logger *zap.Logger
	dial   Dialer

	mu              sync.Mutex
	conn            Transport
	connected       bool
	phase           Phase
	transcript      *Transcript
	draftPrompt     string
	acc             Accumulator
	draft           *survey.Draft
	regen           Regeneration
	save            Persistence
	notice          string
	lastRegenerated int

	seq uint64

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int

	// notifyMu serialises delivery; delivered is the newest Seq handed out.
	notifyMu  sync.Mutex
	delivered uint64

	closeOnce sync.Once
	pumpDone  chan struct{}
}

// New creates an unopened session.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()

	s := &Session{
		id:              id,
		cfg:             cfg.withDefaults(),
		logger:          logger.With(zap.String("component", "session"), zap.String("session_id", id)),
		dial:            DialTransport,
		phase:           PhaseIdle,
		transcript:      NewTranscript(),
		lastRegenerated: -1,
		subscribers:     make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.transcript.Append(chat.RoleAssistant, greeting)
	return s
}

func (s *Session) ID() string { return s.id }

// Open dials the endpoint once and starts consuming connection events.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil || s.phase == PhaseDisconnected {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.mu.Unlock()

	conn, err := s.dial(ctx, ConnConfig{
		Endpoint:         s.cfg.Endpoint,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}, s.logger)
	if err != nil {
		s.logger.Error("open session failed", zap.Error(err))
		return fmt.Errorf("open session: %w", err)
	}

	done := make(chan struct{})
	_ = s.apply(func() error {
		s.conn = conn
		s.connected = true
		s.pumpDone = done
		return nil
	})

	go s.pump(conn, done)
	return nil
}

// Close releases the connection. Safe to call more than once. It must not
// be called from inside a subscriber callback.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn, done := s.conn, s.pumpDone
		s.mu.Unlock()
		if conn == nil {
			return
		}

		err = conn.Close()
		<-done
	})
	return err
}

// Run opens a session, hands it to fn and always closes it afterwards,
// including when fn panics or ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger *zap.Logger, fn func(*Session) error, opts ...Option) (err error) {
	s := New(cfg, logger, opts...)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	return fn(s)
}

// Subscribe registers fn to receive a snapshot after every mutation.
// Callbacks run synchronously on the goroutine that caused the mutation,
// one at a time and in mutation order. When mutations race, an older
// snapshot that lost the race is skipped because a newer one already
// superseded it. fn may call Snapshot but must not call methods that
// mutate the session.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SubmitPrompt starts a top-level generation.
func (s *Session) SubmitPrompt(prompt string) error {
	return s.apply(func() error {
		prompt = strings.TrimSpace(prompt)
		if prompt == "" {
			return s.reject(ErrEmptyPrompt, "Please describe the survey you want to create.")
		}
		if !s.connectedLocked() {
			return s.reject(ErrNotConnected, "Connection lost. Please reload to start a new session.")
		}
		if !s.phase.AcceptsPrompt() {
			return s.reject(ErrInvalidPhase, "Please wait for the current request to finish.")
		}

		if err := s.conn.Send(protocol.GenerateSurvey(prompt, s.cfg.NumQuestions, s.cfg.Template)); err != nil {
			return s.sendFailed(err)
		}

		s.draftPrompt = prompt
		s.transcript.Append(chat.RoleUser, prompt)
		s.acc.Begin()
		s.regen.Clear()
		s.notice = ""
		s.phase = PhaseGenerating
		s.logger.Info("generation requested",
			zap.Int("num_questions", s.cfg.NumQuestions),
			zap.String("template", s.cfg.Template),
		)
		return nil
	})
}

// Save asks the server to persist the current draft. It never changes phase.
func (s *Session) Save() error {
	return s.apply(func() error {
		if !s.connectedLocked() {
			return s.reject(ErrNotConnected, "Not connected. The survey cannot be saved.")
		}
		if s.draft == nil {
			return s.reject(ErrNoDraft, "There is no survey to save yet.")
		}
		if s.phase != PhaseDone {
			return s.reject(ErrInvalidPhase, "Please wait for the current request to finish before saving.")
		}
		switch s.save.Status().State {
		case SaveSaving:
			return s.reject(ErrSaveInFlight, "The survey is already being saved.")
		case SaveSaved:
			return s.reject(ErrAlreadySaved, "This survey has already been saved.")
		}

		if err := s.conn.Send(protocol.SaveSurvey(*s.draft, s.draftPrompt)); err != nil {
			return s.sendFailed(err)
		}

		s.save.Begin()
		s.notice = ""
		s.logger.Info("save requested", zap.String("title", s.draft.Title))
		return nil
	})
}

// apply is the single mutation entry point. Observers are notified outside
// the state lock.
func (s *Session) apply(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.seq++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return err
}

func (s *Session) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Seq <= s.delivered {
		return
	}
	s.delivered = snap.Seq

	s.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:             s.seq,
		ID:              s.id,
		Phase:           s.phase,
		Connected:       s.connectedLocked(),
		Transcript:      s.transcript.Entries(),
		DraftPrompt:     s.draftPrompt,
		Save:            s.save.Status(),
		Notice:          s.notice,
		LastRegenerated: s.lastRegenerated,
	}
	if s.acc.Open() {
		snap.AccumulatedText = s.acc.Text()
	}
	if s.draft != nil {
		d := s.draft.Clone()
		snap.Draft = &d
	}
	snap.Target, snap.HasTarget = s.regen.Target()
	snap.Feedback = s.regen.Feedback()
	return snap
}

func (s *Session) connectedLocked() bool {
	return s.conn != nil && s.connected
}

// reject records a user-visible notice for a refused action.
func (s *Session) reject(err error, notice string) error {
	s.notice = notice
	s.logger.Debug("action rejected", zap.Error(err), zap.Stringer("phase", s.phase))
	return err
}

func (s *Session) sendFailed(err error) error {
	s.logger.Warn("send failed", zap.Error(err))
	return s.reject(err, "The request could not be sent. Please reload to start a new session.")
}

// pump feeds connection events into the state machine until the
// connection's event stream ends.
func (s *Session) pump(conn Transport, done chan struct{}) {
	defer close(done)
	for ev := range conn.Events() {
		s.handleEvent(ev)
	}
}
