package app

import (
	"context"
	"sync"
	"time"

	"wordfall-service/internal/domain"
	"wordfall-service/internal/logging"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// BankRepository loads question banks (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, bankID string) (domain.Bank, error)
}

// SummaryRepository keeps the outcome of ended sessions.
type SummaryRepository interface {
	Record(summary domain.SessionSummary)
	Summary(sessionID string) (domain.SessionSummary, bool)
}

// GameService contains the play use cases.
type GameService struct {
	sessions  SessionRepository
	banks     BankRepository
	summaries SummaryRepository
	cfg       SessionConfig
	tick      time.Duration

	mu      sync.Mutex
	runners map[string]*runnerHandle
}

type runnerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewGameService(sessions SessionRepository, banks BankRepository, summaries SummaryRepository, cfg SessionConfig, tick time.Duration) *GameService {
	return &GameService{
		sessions:  sessions,
		banks:     banks,
		summaries: summaries,
		cfg:       cfg,
		tick:      tick,
		runners:   make(map[string]*runnerHandle),
	}
}

// CreateSession loads a bank and starts a waiting session with its own
// runner. The runner outlives ctx; call End to stop it.
func (s *GameService) CreateSession(ctx context.Context, bankID string) (domain.SessionSnapshot, error) {
	logger := logging.FromContext(ctx).Named("app.service")

	bank, err := s.banks.GetBank(ctx, bankID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if err := bank.Validate(); err != nil {
		return domain.SessionSnapshot{}, err
	}

	session := NewSession("", bank, s.cfg)
	s.sessions.Put(session)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &runnerHandle{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.runners[session.ID()] = h
	s.mu.Unlock()

	go func() {
		defer close(h.done)
		NewRunner(session, s.tick).Run(runCtx)
		s.finish(runCtx, session)
	}()

	logger.Infow("session created", "session", session.ID(), "bank", bankID, "questions", len(bank.Questions))
	return session.Snapshot(), nil
}

func (s *GameService) finish(ctx context.Context, session *Session) {
	session.Abort()
	summary := session.Summary()
	s.sessions.Delete(session.ID())
	s.summaries.Record(summary)

	s.mu.Lock()
	delete(s.runners, session.ID())
	s.mu.Unlock()

	logging.FromContext(ctx).Named("app.service").Infow("session finished",
		"session", summary.SessionID,
		"result", summary.Result,
		"failures", summary.Failures,
		"completed", summary.Completed,
		"total", summary.Total,
	)
}

// End aborts a session and waits for its runner to release it.
func (s *GameService) End(_ context.Context, sessionID string) error {
	s.mu.Lock()
	h, ok := s.runners[sessionID]
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	h.cancel()
	<-h.done
	return nil
}

func (s *GameService) session(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// PressKey forwards keyboard input.
func (s *GameService) PressKey(_ context.Context, sessionID, key string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	session.PressKey(key)
	return nil
}

// PointerMove forwards pointer movement for hover selection.
func (s *GameService) PointerMove(_ context.Context, sessionID string, x, y float64) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	session.PointerMove(x, y)
	return nil
}

// SelectRound selects a round explicitly.
func (s *GameService) SelectRound(_ context.Context, sessionID, roundID string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return session.SelectRound(roundID)
}

// ClickChoice selects a word on a round.
func (s *GameService) ClickChoice(_ context.Context, sessionID, roundID, word string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return session.ClickChoice(roundID, word)
}

// Abort ends play; the runner then records the summary.
func (s *GameService) Abort(_ context.Context, sessionID string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	session.Abort()
	return nil
}

// Snapshot returns the current state of a live session.
func (s *GameService) Snapshot(_ context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// Subscribe returns a channel that receives session updates.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(_ context.Context, sessionID string) (<-chan Update, func(), error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Summary returns the outcome of an ended session.
func (s *GameService) Summary(_ context.Context, sessionID string) (domain.SessionSummary, error) {
	summary, ok := s.summaries.Summary(sessionID)
	if !ok {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	return summary, nil
}

// Bank describes a question bank without exposing answers.
func (s *GameService) Bank(ctx context.Context, bankID string) (domain.BankInfo, error) {
	bank, err := s.banks.GetBank(ctx, bankID)
	if err != nil {
		return domain.BankInfo{}, err
	}
	return bank.Info(), nil
}

// Shutdown ends every live session and waits for their runners.
func (s *GameService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.runners))
	for id := range s.runners {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.End(ctx, id)
	}
}
