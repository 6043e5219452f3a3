package app_test

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"wordfall-service/internal/app"
	"wordfall-service/internal/domain"
	"wordfall-service/internal/game"
)

var slowSchedule = game.TimerSchedule{Base: time.Hour, Min: time.Hour}

func testBank() domain.Bank {
	return domain.Bank{
		ID: "bank-1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "first letters?", Answer: "a b c"},
			{ID: "q2", Prompt: "next letters?", Answer: "d e"},
			{ID: "q3", Prompt: "last letter?", Answer: "f"},
		},
		Fillers: []string{"the", "be", "to", "of", "and", "in", "that", "have"},
	}
}

func twoQuestionBank() domain.Bank {
	b := testBank()
	b.Questions = b.Questions[:2]
	return b
}

func testConfig() app.SessionConfig {
	cfg := app.DefaultSessionConfig()
	cfg.Schedule = slowSchedule
	cfg.SpawnInterval = time.Hour
	cfg.FallDuration = 10 * time.Second
	cfg.FieldWidth = 5000
	return cfg
}

func newTestSession(bank domain.Bank, cfg app.SessionConfig) *app.Session {
	now := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return app.NewSessionWithClock("s1", bank, cfg, now, rand.New(rand.NewSource(1)))
}

func expectedWord(t *testing.T, bank domain.Bank, r domain.RoundSnapshot) string {
	t.Helper()
	q, ok := bank.Question(r.QuestionID)
	if !ok {
		t.Fatalf("unknown question %s", r.QuestionID)
	}
	return q.Words()[r.WordIndex]
}

func findRound(snap domain.SessionSnapshot, id string) (domain.RoundSnapshot, bool) {
	for _, r := range snap.Rounds {
		if r.ID == id {
			return r, true
		}
	}
	return domain.RoundSnapshot{}, false
}

func TestEnterStartsSession(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	if snap := s.Snapshot(); snap.Status != domain.SessionWaiting || len(snap.Rounds) != 0 {
		t.Fatalf("expected waiting session without rounds, got %+v", snap)
	}

	s.PressKey("x")
	if s.Snapshot().Status != domain.SessionWaiting {
		t.Fatalf("only Enter starts the session")
	}

	s.PressKey("Enter")
	snap := s.Snapshot()
	if snap.Status != domain.SessionPlaying {
		t.Fatalf("expected playing, got %s", snap.Status)
	}
	if len(snap.Rounds) != 1 {
		t.Fatalf("expected one round spawned on start, got %d", len(snap.Rounds))
	}
}

func TestSpawnRoundRejections(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	if _, err := s.SpawnRound("q1"); !errors.Is(err, domain.ErrSessionNotPlaying) {
		t.Fatalf("expected not playing, got %v", err)
	}

	s.Start()
	first := s.Snapshot().Rounds[0]
	if _, err := s.SpawnRound(first.QuestionID); !errors.Is(err, domain.ErrQuestionActive) {
		t.Fatalf("expected active, got %v", err)
	}
	if _, err := s.SpawnRound("nope"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	var others []string
	for _, q := range testBank().Questions {
		if q.ID != first.QuestionID {
			others = append(others, q.ID)
		}
	}
	if _, err := s.SpawnRound(others[0]); err != nil {
		t.Fatalf("spawn second round: %v", err)
	}
	if _, err := s.SpawnRound(others[1]); !errors.Is(err, domain.ErrSessionFull) {
		t.Fatalf("expected full, got %v", err)
	}

	for {
		r, ok := findRound(s.Snapshot(), first.ID)
		if !ok {
			break
		}
		if err := s.ClickChoice(r.ID, expectedWord(t, testBank(), r)); err != nil {
			t.Fatalf("click: %v", err)
		}
	}
	if _, err := s.SpawnRound(first.QuestionID); !errors.Is(err, domain.ErrQuestionCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
	if err := s.OnRoundTerminal(first.ID, domain.RoundWon); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("expected round not found for removed round, got %v", err)
	}
}

func TestTerminalSpawnsReplacementImmediately(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	s.Start()
	first := s.Snapshot().Rounds[0]

	if err := s.OnRoundTerminal(first.ID, domain.RoundLost); err != nil {
		t.Fatalf("terminal: %v", err)
	}
	snap := s.Snapshot()
	if snap.Failures != 1 || snap.Completed != 1 {
		t.Fatalf("expected lost question consumed, got failures=%d completed=%d", snap.Failures, snap.Completed)
	}
	if len(snap.Rounds) != 1 || snap.Rounds[0].QuestionID == first.QuestionID {
		t.Fatalf("expected a replacement round for another question, got %+v", snap.Rounds)
	}
}

func TestMaintainPopulationRespectsCap(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	s.Start()
	for i := 0; i < 5; i++ {
		s.MaintainPopulation()
	}
	if n := len(s.Snapshot().Rounds); n != 2 {
		t.Fatalf("expected population capped at 2, got %d", n)
	}
}

func TestSpawnIntervalDrivesPopulation(t *testing.T) {
	cfg := testConfig()
	cfg.SpawnInterval = 3 * time.Second
	s := newTestSession(testBank(), cfg)
	s.Start()

	s.Advance(2 * time.Second)
	if n := len(s.Snapshot().Rounds); n != 1 {
		t.Fatalf("expected 1 round before the interval, got %d", n)
	}
	s.Advance(time.Second)
	if n := len(s.Snapshot().Rounds); n != 2 {
		t.Fatalf("expected 2 rounds after the interval, got %d", n)
	}
}

func TestLostRoundsConsumeQuestions(t *testing.T) {
	bank := twoQuestionBank()
	s := newTestSession(bank, testConfig())
	s.Start()

	losses := 0
	for s.Snapshot().Status != domain.SessionOver {
		snap := s.Snapshot()
		if len(snap.Rounds) == 0 {
			t.Fatalf("session stalled: %+v", snap)
		}
		if err := s.OnRoundTerminal(snap.Rounds[0].ID, domain.RoundLost); err != nil {
			t.Fatalf("terminal: %v", err)
		}
		losses++
	}
	snap := s.Snapshot()
	if losses != len(bank.Questions) || snap.Failures != losses {
		t.Fatalf("expected session over after %d losses, got losses=%d failures=%d", len(bank.Questions), losses, snap.Failures)
	}
	if len(snap.Rounds) != 0 {
		t.Fatalf("over session must have no active rounds")
	}
}

func TestFailureCapEndsSession(t *testing.T) {
	cfg := testConfig()
	cfg.RetryLost = true
	s := newTestSession(twoQuestionBank(), cfg)
	s.Start()

	for i := 0; i < 5; i++ {
		snap := s.Snapshot()
		if snap.Status != domain.SessionPlaying {
			t.Fatalf("session ended early after %d losses", i)
		}
		if err := s.OnRoundTerminal(snap.Rounds[0].ID, domain.RoundLost); err != nil {
			t.Fatalf("terminal: %v", err)
		}
	}
	snap := s.Snapshot()
	if snap.Status != domain.SessionOver || snap.Result != domain.ResultLost {
		t.Fatalf("expected over/lost, got %s/%s", snap.Status, snap.Result)
	}
	if snap.Failures != 5 {
		t.Fatalf("expected 5 failures, got %d", snap.Failures)
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("done must be closed once over")
	}
}

func TestClearingTheBankWins(t *testing.T) {
	bank := testBank()
	s := newTestSession(bank, testConfig())
	s.Start()

	for i := 0; s.Snapshot().Status == domain.SessionPlaying; i++ {
		if i > 100 {
			t.Fatalf("session did not finish")
		}
		r := s.Snapshot().Rounds[0]
		if err := s.ClickChoice(r.ID, strings.ToUpper(expectedWord(t, bank, r))); err != nil {
			t.Fatalf("click: %v", err)
		}
	}
	snap := s.Snapshot()
	if snap.Result != domain.ResultWon || snap.Failures != 0 || snap.Completed != 3 {
		t.Fatalf("expected clean win, got %+v", snap)
	}
	summary := s.Summary()
	if summary.Result != domain.ResultWon || summary.Completed != 3 || summary.EndedAt.IsZero() {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestKeysRouteToSelectedRound(t *testing.T) {
	bank := testBank()
	s := newTestSession(bank, testConfig())
	s.Start()
	r := s.Snapshot().Rounds[0]

	s.PressKey("1")
	if got, _ := findRound(s.Snapshot(), r.ID); got.WordIndex != 0 {
		t.Fatalf("keys must be ignored without a selected round")
	}

	if err := s.SelectRound(r.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	ordinal := -1
	for i, c := range r.Choices {
		if strings.EqualFold(c, expectedWord(t, bank, r)) {
			ordinal = i
		}
	}
	if ordinal < 0 {
		t.Fatalf("expected word missing from %v", r.Choices)
	}
	s.PressKey(strconv.Itoa(ordinal + 1))

	got, ok := findRound(s.Snapshot(), r.ID)
	if !ok {
		// single-word answers finish the round
		return
	}
	if got.WordIndex != 1 || got.Outcomes[0].Outcome != domain.OutcomeCorrect {
		t.Fatalf("expected first word correct, got %+v", got)
	}
	if !got.Selected {
		t.Fatalf("round should stay selected")
	}
}

func TestSelectionClearedWhenRoundRemoved(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	s.Start()
	r := s.Snapshot().Rounds[0]
	if err := s.SelectRound(r.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.OnRoundTerminal(r.ID, domain.RoundLost); err != nil {
		t.Fatalf("terminal: %v", err)
	}
	if sel := s.Snapshot().SelectedRoundID; sel != "" {
		t.Fatalf("expected selection cleared, got %s", sel)
	}
	if err := s.SelectRound("missing"); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("expected round not found, got %v", err)
	}
}

func TestPointerSelection(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	s.Start()
	a := s.Snapshot().Rounds[0]
	var other string
	for _, q := range testBank().Questions {
		if q.ID != a.QuestionID {
			other = q.ID
			break
		}
	}
	bID, err := s.SpawnRound(other)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	s.Advance(5 * time.Second)

	snap := s.Snapshot()
	a, _ = findRound(snap, a.ID)
	b, _ := findRound(snap, bID)
	if a.Y != b.Y || a.Y <= -a.Height {
		t.Fatalf("rounds should be falling together, got a.y=%f b.y=%f", a.Y, b.Y)
	}

	// just below a: nothing hovered, nothing selected, a is nearest
	s.PointerMove(a.X+a.Width/2, a.Y+a.Height+50)
	if sel := s.Snapshot().SelectedRoundID; sel != a.ID {
		t.Fatalf("expected nearest round %s, got %s", a.ID, sel)
	}

	s.PointerMove(b.X+10, b.Y+10)
	if sel := s.Snapshot().SelectedRoundID; sel != b.ID {
		t.Fatalf("expected hovered round %s, got %s", b.ID, sel)
	}

	s.PointerMove(a.X+a.Width/2, a.Y+a.Height+50)
	if sel := s.Snapshot().SelectedRoundID; sel != b.ID {
		t.Fatalf("existing selection must stick when nothing is hovered, got %s", sel)
	}
}

func TestFallDeadlineForcesLoss(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	updates, cancel := s.Subscribe()
	defer cancel()
	s.Start()
	r := s.Snapshot().Rounds[0]

	s.Advance(9 * time.Second)
	if _, ok := findRound(s.Snapshot(), r.ID); !ok {
		t.Fatalf("round ended before reaching the bottom")
	}
	s.Advance(time.Second)

	snap := s.Snapshot()
	if _, ok := findRound(snap, r.ID); ok {
		t.Fatalf("round should be gone after its fall deadline")
	}
	if snap.Failures != 1 {
		t.Fatalf("expected one failure, got %d", snap.Failures)
	}

	lost := 0
	for {
		select {
		case u := <-updates:
			for _, ev := range u.Events {
				if ev.Kind == domain.EventRoundLost && ev.RoundID == r.ID {
					lost++
					if ev.Cue != "death" {
						t.Fatalf("unexpected cue %q", ev.Cue)
					}
				}
			}
			continue
		default:
		}
		break
	}
	if lost != 1 {
		t.Fatalf("expected exactly one lost event, got %d", lost)
	}
}

func TestWordTimeoutCountsAsMiss(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = game.TimerSchedule{Base: time.Second, Min: time.Second}
	cfg.FallDuration = time.Hour
	s := newTestSession(testBank(), cfg)
	s.Start()
	r := s.Snapshot().Rounds[0]

	s.Advance(time.Second)
	got, ok := findRound(s.Snapshot(), r.ID)
	if !ok {
		return
	}
	if got.Lives != r.MaxLives-1 || got.WordIndex != 1 || got.Outcomes[0].Outcome != domain.OutcomeIncorrect {
		t.Fatalf("expected timed-out word, got %+v", got)
	}
}

func TestSubscribeClosesWhenSessionEnds(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	updates, cancel := s.Subscribe()
	defer cancel()

	initial := <-updates
	if initial.Snapshot.Status != domain.SessionWaiting {
		t.Fatalf("expected initial waiting snapshot, got %s", initial.Snapshot.Status)
	}

	s.Start()
	s.Abort()

	var kinds []domain.EventKind
	timeout := time.After(time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				if len(kinds) == 0 || kinds[len(kinds)-1] != domain.EventSessionOver {
					t.Fatalf("expected session_over last, got %v", kinds)
				}
				if kinds[0] != domain.EventSpawned {
					t.Fatalf("expected spawned first, got %v", kinds)
				}
				return
			}
			for _, ev := range u.Events {
				kinds = append(kinds, ev.Kind)
			}
		case <-timeout:
			t.Fatalf("updates channel not closed")
		}
	}
}

func TestOverSessionIgnoresInput(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	s.Start()
	r := s.Snapshot().Rounds[0]
	s.Abort()

	if err := s.ClickChoice(r.ID, "a"); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("expected round not found, got %v", err)
	}
	s.Advance(time.Minute)
	s.PressKey("Enter")
	snap := s.Snapshot()
	if snap.Status != domain.SessionOver || snap.ElapsedMs != 0 {
		t.Fatalf("over session must not change, got %+v", snap)
	}

	updates, cancel := s.Subscribe()
	defer cancel()
	<-updates
	if _, ok := <-updates; ok {
		t.Fatalf("subscription to an over session must be closed")
	}
}

func TestOnRoundTerminalRejectsWinForRunningRound(t *testing.T) {
	s := newTestSession(testBank(), testConfig())
	s.Start()
	r := s.Snapshot().Rounds[0]

	if err := s.OnRoundTerminal(r.ID, domain.RoundWon); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	snap := s.Snapshot()
	if _, ok := findRound(snap, r.ID); !ok {
		t.Fatalf("round must stay active after a rejected outcome")
	}
	if snap.Completed != 0 || snap.Failures != 0 {
		t.Fatalf("rejected outcome must not be accounted, got %+v", snap)
	}

	if err := s.OnRoundTerminal(r.ID, domain.RoundInProgress); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for non-terminal outcome, got %v", err)
	}
}

func TestSlowSubscriberKeepsEventOrder(t *testing.T) {
	bank := testBank()
	s := newTestSession(bank, testConfig())
	updates, cancel := s.Subscribe()
	defer cancel()

	s.PressKey("Enter")
	for i := 0; i < 12; i++ {
		s.PointerMove(float64(i), float64(i))
	}
	r := s.Snapshot().Rounds[0]
	for {
		cur, ok := findRound(s.Snapshot(), r.ID)
		if !ok {
			break
		}
		if err := s.ClickChoice(cur.ID, expectedWord(t, bank, cur)); err != nil {
			t.Fatalf("click: %v", err)
		}
	}

	var kinds []domain.EventKind
	var last domain.SessionSnapshot
	for {
		select {
		case u := <-updates:
			for _, ev := range u.Events {
				kinds = append(kinds, ev.Kind)
			}
			last = u.Snapshot
			continue
		default:
		}
		break
	}

	if len(kinds) == 0 || kinds[0] != domain.EventSpawned {
		t.Fatalf("expected spawned first, got %v", kinds)
	}
	wonAt := -1
	for i, k := range kinds {
		if k == domain.EventRoundWon {
			wonAt = i
			break
		}
	}
	if wonAt < 0 {
		t.Fatalf("expected a won event, got %v", kinds)
	}
	for _, k := range kinds[:wonAt] {
		if k != domain.EventSpawned && k != domain.EventCorrect {
			t.Fatalf("unexpected event before win: %v", kinds)
		}
	}
	q, _ := bank.Question(r.QuestionID)
	if got, want := wonAt-1, len(q.Words()); got != want {
		t.Fatalf("expected %d correct events between spawn and win, got %v", want, kinds)
	}
	if want := s.Snapshot(); last.Completed != want.Completed || len(last.Rounds) != len(want.Rounds) {
		t.Fatalf("last delivered snapshot is stale: got %+v want %+v", last, want)
	}
}
