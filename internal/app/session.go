package app

import (
	"fmt"
	"math"
	"sync"
	"time"

	"wordfall-service/internal/domain"
	"wordfall-service/internal/game"

	"github.com/google/uuid"
)

// SessionConfig holds the rules of a play session.
type SessionConfig struct {
	MaxLives            int
	MaxActive           int
	FailureCap          int
	FallDuration        time.Duration
	SpawnInterval       time.Duration
	Schedule            game.TimerSchedule
	ArmOnFirstSelection bool
	// RetryLost returns lost questions to the pool instead of consuming them.
	RetryLost bool

	FieldWidth        float64
	FieldHeight       float64
	RoundWidth        float64
	RoundHeight       float64
	PlacementAttempts int
}

// DefaultSessionConfig mirrors the browser game: two falling rounds with
// five hearts each, five failures end the session.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxLives:          5,
		MaxActive:         2,
		FailureCap:        5,
		FallDuration:      60 * time.Second,
		SpawnInterval:     3 * time.Second,
		Schedule:          game.DefaultSchedule,
		FieldWidth:        1280,
		FieldHeight:       800,
		RoundWidth:        300,
		RoundHeight:       200,
		PlacementAttempts: 10,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.MaxLives <= 0 {
		c.MaxLives = def.MaxLives
	}
	if c.MaxActive <= 0 {
		c.MaxActive = def.MaxActive
	}
	if c.FailureCap <= 0 {
		c.FailureCap = def.FailureCap
	}
	if c.FallDuration <= 0 {
		c.FallDuration = def.FallDuration
	}
	if c.SpawnInterval <= 0 {
		c.SpawnInterval = def.SpawnInterval
	}
	if c.Schedule == (game.TimerSchedule{}) {
		c.Schedule = def.Schedule
	}
	if c.FieldWidth <= 0 {
		c.FieldWidth = def.FieldWidth
	}
	if c.FieldHeight <= 0 {
		c.FieldHeight = def.FieldHeight
	}
	if c.RoundWidth <= 0 {
		c.RoundWidth = def.RoundWidth
	}
	if c.RoundHeight <= 0 {
		c.RoundHeight = def.RoundHeight
	}
	if c.PlacementAttempts <= 0 {
		c.PlacementAttempts = def.PlacementAttempts
	}
	return c
}

// Update is what subscribers receive: the state after an operation and
// the events it produced.
type Update struct {
	Snapshot domain.SessionSnapshot `json:"snapshot"`
	Events   []domain.Event         `json:"events,omitempty"`
}

type activeRound struct {
	id         string
	questionID string
	round      *game.Round
	x          float64
	spawnedAt  time.Duration
	deadline   time.Duration
	// detached rounds were force-ended by the session itself and no longer
	// report back.
	detached bool
}

type terminal struct {
	roundID string
	outcome domain.RoundStatus
}

// Session orchestrates the falling rounds of one player. All methods are
// safe for concurrent use; the mutex serializes ticks and input so rounds
// only ever see one caller at a time.
type Session struct {
	id   string
	bank domain.Bank
	cfg  SessionConfig
	now  func() time.Time
	rand game.Rand

	mu          sync.Mutex
	status      domain.SessionStatus
	result      domain.SessionResult
	rounds      map[string]*activeRound
	order       []string
	active      map[string]string // question id -> round id
	completed   map[string]struct{}
	failures    int
	selected    string
	elapsed     time.Duration
	sinceSpawn  time.Duration
	startedAt   time.Time
	endedAt     time.Time
	pending     []domain.Event
	terminals   []terminal
	subscribers map[chan Update]struct{}
	done        chan struct{}
}

// NewSession creates a session in the waiting state.
func NewSession(id string, bank domain.Bank, cfg SessionConfig) *Session {
	return NewSessionWithClock(id, bank, cfg, time.Now, game.DefaultRand)
}

// NewSessionWithClock allows deterministic timestamps and randomness in tests.
func NewSessionWithClock(id string, bank domain.Bank, cfg SessionConfig, now func() time.Time, rnd game.Rand) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:          id,
		bank:        bank,
		cfg:         cfg.withDefaults(),
		now:         now,
		rand:        rnd,
		status:      domain.SessionWaiting,
		rounds:      make(map[string]*activeRound),
		active:      make(map[string]string),
		completed:   make(map[string]struct{}),
		subscribers: make(map[chan Update]struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session is over.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start moves a waiting session into play and spawns the first round.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
	s.settleLocked()
}

func (s *Session) startLocked() {
	if s.status != domain.SessionWaiting {
		return
	}
	s.status = domain.SessionPlaying
	s.startedAt = s.now()
	s.maintainPopulationLocked()
}

// SpawnRound starts a round for the given question.
func (s *Session) SpawnRound(questionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.spawnLocked(questionID)
	s.settleLocked()
	return id, err
}

func (s *Session) spawnLocked(questionID string) (string, error) {
	if s.status != domain.SessionPlaying {
		return "", domain.ErrSessionNotPlaying
	}
	q, ok := s.bank.Question(questionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if _, done := s.completed[questionID]; done {
		return "", fmt.Errorf("%w: %s", domain.ErrQuestionCompleted, questionID)
	}
	if _, busy := s.active[questionID]; busy {
		return "", fmt.Errorf("%w: %s", domain.ErrQuestionActive, questionID)
	}
	if len(s.rounds) >= s.cfg.MaxActive {
		return "", domain.ErrSessionFull
	}

	ar := &activeRound{
		id:         uuid.NewString(),
		questionID: questionID,
		x:          s.placeLocked(),
		spawnedAt:  s.elapsed,
		deadline:   s.elapsed + s.cfg.FallDuration,
	}
	ar.round = game.NewRound(game.Options{
		Schedule:            s.cfg.Schedule,
		ArmOnFirstSelection: s.cfg.ArmOnFirstSelection,
		Rand:                s.rand,
		Listener:            func(ev game.Event) { s.onRoundEvent(ar, ev) },
	})
	if err := ar.round.Start(q.Prompt, q.Answer, s.bank.Fillers, s.cfg.MaxLives); err != nil {
		return "", fmt.Errorf("start round for %s: %w", questionID, err)
	}

	s.rounds[ar.id] = ar
	s.order = append(s.order, ar.id)
	s.active[questionID] = ar.id
	s.emitLocked(domain.EventSpawned, ar.id, "")
	return ar.id, nil
}

// placeLocked picks a horizontal lane that does not overlap lanes in use.
// After PlacementAttempts rejected samples the last sample is kept.
func (s *Session) placeLocked() float64 {
	span := int(s.cfg.FieldWidth - s.cfg.RoundWidth)
	if span <= 0 {
		return 0
	}
	var x float64
	for attempt := 0; attempt < s.cfg.PlacementAttempts; attempt++ {
		x = float64(s.rand.Intn(span + 1))
		if !s.overlapsLocked(x) {
			return x
		}
	}
	return x
}

func (s *Session) overlapsLocked(x float64) bool {
	for _, ar := range s.rounds {
		if math.Abs(ar.x-x) < s.cfg.RoundWidth {
			return true
		}
	}
	return false
}

// onRoundEvent runs inside round calls, which only happen under s.mu.
func (s *Session) onRoundEvent(ar *activeRound, ev game.Event) {
	if ar.detached {
		return
	}
	s.emitLocked(ev.Kind, ar.id, ev.Word)
	switch ev.Kind {
	case domain.EventRoundWon:
		s.terminals = append(s.terminals, terminal{roundID: ar.id, outcome: domain.RoundWon})
	case domain.EventRoundLost:
		s.terminals = append(s.terminals, terminal{roundID: ar.id, outcome: domain.RoundLost})
	}
}

// MaintainPopulation spawns one round when below the concurrency cap,
// choosing uniformly among questions that are neither completed nor active.
func (s *Session) MaintainPopulation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintainPopulationLocked()
	s.settleLocked()
}

func (s *Session) maintainPopulationLocked() {
	if s.status != domain.SessionPlaying || len(s.rounds) >= s.cfg.MaxActive {
		return
	}
	eligible := s.eligibleLocked()
	if len(eligible) == 0 {
		return
	}
	q := eligible[s.rand.Intn(len(eligible))]
	// the bank is validated up front, a failure here is a bug in the bank loader
	_, _ = s.spawnLocked(q)
}

func (s *Session) eligibleLocked() []string {
	out := make([]string, 0, len(s.bank.Questions))
	for _, q := range s.bank.Questions {
		if _, done := s.completed[q.ID]; done {
			continue
		}
		if _, busy := s.active[q.ID]; busy {
			continue
		}
		out = append(out, q.ID)
	}
	return out
}

// OnRoundTerminal removes a finished round and accounts for its outcome.
func (s *Session) OnRoundTerminal(roundID string, outcome domain.RoundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.onRoundTerminalLocked(roundID, outcome)
	s.settleLocked()
	return err
}

func (s *Session) onRoundTerminalLocked(roundID string, outcome domain.RoundStatus) error {
	ar, ok := s.rounds[roundID]
	if !ok {
		return domain.ErrRoundNotFound
	}
	if !outcome.Terminal() {
		return fmt.Errorf("%w: outcome %q", domain.ErrInvalidArgument, outcome)
	}
	status := ar.round.Status()
	if status.Terminal() && status != outcome {
		return fmt.Errorf("%w: round %s ended %q, not %q", domain.ErrInvalidArgument, roundID, status, outcome)
	}
	if !status.Terminal() {
		// only a loss can be imposed from outside, e.g. an external abort of this round
		if outcome != domain.RoundLost {
			return fmt.Errorf("%w: round %s is still in progress", domain.ErrInvalidArgument, roundID)
		}
		ar.detached = true
		ar.round.ForceEnd()
	}
	s.removeLocked(ar)

	switch outcome {
	case domain.RoundLost:
		s.failures++
		if !s.cfg.RetryLost {
			s.completed[ar.questionID] = struct{}{}
		}
	case domain.RoundWon:
		s.completed[ar.questionID] = struct{}{}
	}

	if s.checkOverLocked() {
		return nil
	}
	s.maintainPopulationLocked()
	return nil
}

func (s *Session) removeLocked(ar *activeRound) {
	delete(s.rounds, ar.id)
	delete(s.active, ar.questionID)
	for i, id := range s.order {
		if id == ar.id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.selected == ar.id {
		s.selected = ""
	}
}

func (s *Session) checkOverLocked() bool {
	switch {
	case s.failures >= s.cfg.FailureCap:
		s.endLocked(domain.ResultLost)
	case len(s.completed) >= len(s.bank.Questions):
		s.endLocked(domain.ResultWon)
	default:
		return false
	}
	return true
}

func (s *Session) endLocked(result domain.SessionResult) {
	if s.status == domain.SessionOver {
		return
	}
	for _, id := range s.order {
		ar := s.rounds[id]
		ar.detached = true
		ar.round.ForceEnd()
	}
	s.rounds = make(map[string]*activeRound)
	s.active = make(map[string]string)
	s.order = nil
	s.selected = ""
	s.terminals = nil
	s.status = domain.SessionOver
	s.result = result
	s.endedAt = s.now()
	s.emitLocked(domain.EventSessionOver, "", string(result))
}

// Abort ends the session immediately, as a loss unless it is already over.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(domain.ResultLost)
	s.settleLocked()
}

// Advance moves session time forward: every active round ticks, due fall
// deadlines fire and the spawn interval runs.
func (s *Session) Advance(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.SessionPlaying || elapsed <= 0 {
		return
	}
	s.elapsed += elapsed

	ids := append([]string(nil), s.order...)
	for _, id := range ids {
		if ar, ok := s.rounds[id]; ok {
			ar.round.Tick(elapsed)
		}
	}
	s.processTerminalsLocked()

	for _, id := range ids {
		if ar, ok := s.rounds[id]; ok && s.elapsed >= ar.deadline {
			ar.round.ForceEnd()
		}
	}
	s.processTerminalsLocked()

	s.sinceSpawn += elapsed
	if s.sinceSpawn >= s.cfg.SpawnInterval {
		s.sinceSpawn = 0
		s.maintainPopulationLocked()
	}
	s.settleLocked()
}

// SelectRound makes roundID the target of keyboard input.
func (s *Session) SelectRound(roundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[roundID]; !ok {
		return domain.ErrRoundNotFound
	}
	s.selected = roundID
	s.settleLocked()
	return nil
}

// PointerMove selects the round under the pointer. When no round is
// hovered and nothing is selected yet, the nearest round center wins.
func (s *Session) PointerMove(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := s.roundAtLocked(x, y); id != "" {
		s.selected = id
	} else if s.selected == "" {
		s.selected = s.nearestLocked(x, y)
	}
	s.settleLocked()
}

func (s *Session) roundAtLocked(x, y float64) string {
	for _, id := range s.order {
		rx, ry := s.positionLocked(s.rounds[id])
		if x >= rx && x <= rx+s.cfg.RoundWidth && y >= ry && y <= ry+s.cfg.RoundHeight {
			return id
		}
	}
	return ""
}

func (s *Session) nearestLocked(x, y float64) string {
	best, bestDist := "", math.Inf(1)
	for _, id := range s.order {
		rx, ry := s.positionLocked(s.rounds[id])
		cx, cy := rx+s.cfg.RoundWidth/2, ry+s.cfg.RoundHeight/2
		if d := math.Hypot(cx-x, cy-y); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best
}

// positionLocked places a round on its fall trajectory: it enters above the
// field and reaches the bottom edge at its deadline.
func (s *Session) positionLocked(ar *activeRound) (float64, float64) {
	frac := float64(s.elapsed-ar.spawnedAt) / float64(s.cfg.FallDuration)
	if frac > 1 {
		frac = 1
	}
	y := -s.cfg.RoundHeight + frac*(s.cfg.FieldHeight+s.cfg.RoundHeight)
	return ar.x, y
}

// PressKey handles keyboard input: Enter starts the session, digits 1-3
// pick the matching choice of the selected round.
func (s *Session) PressKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case "Enter":
		s.startLocked()
	case "1", "2", "3":
		if s.status != domain.SessionPlaying {
			break
		}
		if ar, ok := s.rounds[s.selected]; ok {
			ar.round.SelectChoice(int(key[0] - '1'))
		}
	}
	s.settleLocked()
}

// ClickChoice selects a word on a specific round, as a click on its button.
func (s *Session) ClickChoice(roundID, word string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ar, ok := s.rounds[roundID]
	if !ok {
		return domain.ErrRoundNotFound
	}
	ar.round.SelectWord(word)
	s.settleLocked()
	return nil
}

func (s *Session) processTerminalsLocked() {
	for len(s.terminals) > 0 {
		t := s.terminals[0]
		s.terminals = s.terminals[1:]
		_ = s.onRoundTerminalLocked(t.roundID, t.outcome)
	}
}

// settleLocked finishes every operation: terminal rounds are accounted for,
// subscribers get the new state, and an over session releases them.
func (s *Session) settleLocked() {
	s.processTerminalsLocked()
	if len(s.pending) > 0 || s.status == domain.SessionPlaying {
		s.broadcastLocked()
	}
	if s.status == domain.SessionOver {
		s.closeLocked()
	}
}

func (s *Session) closeLocked() {
	select {
	case <-s.done:
		return
	default:
	}
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	close(s.done)
}

func (s *Session) emitLocked(kind domain.EventKind, roundID, word string) {
	s.pending = append(s.pending, domain.Event{
		Kind:      kind,
		SessionID: s.id,
		RoundID:   roundID,
		Word:      word,
		Cue:       kind.Cue(),
		At:        s.now(),
	})
}

// Subscribe returns a channel of updates starting with the current state.
// The channel is closed when the session ends; cancel releases it early.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 8)

	s.mu.Lock()
	ch <- Update{Snapshot: s.snapshotLocked()}
	select {
	case <-s.done:
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	default:
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	u := Update{Snapshot: s.snapshotLocked(), Events: s.pending}
	s.pending = nil
	for ch := range s.subscribers {
		select {
		case ch <- u:
			continue
		default:
		}
		// slow subscriber: collapse everything queued into one update that
		// carries the latest snapshot and all events in emission order
		var events []domain.Event
	drain:
		for {
			select {
			case old := <-ch:
				events = append(events, old.Events...)
			default:
				break drain
			}
		}
		merged := Update{Snapshot: u.Snapshot, Events: append(events, u.Events...)}
		select {
		case ch <- merged:
		default:
		}
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		ID:              s.id,
		BankID:          s.bank.ID,
		Status:          s.status,
		Result:          s.result,
		Failures:        s.failures,
		FailureCap:      s.cfg.FailureCap,
		Completed:       len(s.completed),
		Total:           len(s.bank.Questions),
		SelectedRoundID: s.selected,
		Rounds:          make([]domain.RoundSnapshot, 0, len(s.order)),
		ElapsedMs:       s.elapsed.Milliseconds(),
	}
	for _, id := range s.order {
		ar := s.rounds[id]
		rs := ar.round.Snapshot()
		rs.ID = ar.id
		rs.QuestionID = ar.questionID
		rs.X, rs.Y = s.positionLocked(ar)
		rs.Width, rs.Height = s.cfg.RoundWidth, s.cfg.RoundHeight
		rs.Selected = id == s.selected
		snap.Rounds = append(snap.Rounds, rs)
	}
	return snap
}

// Summary describes the session for the results cache.
func (s *Session) Summary() domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionSummary{
		SessionID: s.id,
		BankID:    s.bank.ID,
		Result:    s.result,
		Failures:  s.failures,
		Completed: len(s.completed),
		Total:     len(s.bank.Questions),
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}
