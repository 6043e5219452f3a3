package game

import (
	"fmt"
	"strings"
	"time"

	"wordfall-service/internal/domain"
)

const maxDistractors = 2

// Event is emitted by a round when a word resolves or the round ends.
type Event struct {
	Kind      domain.EventKind
	Word      string
	WordIndex int
}

// Options tune a round. The zero value uses DefaultSchedule and DefaultRand.
type Options struct {
	Schedule TimerSchedule
	// ArmOnFirstSelection keeps the countdown idle until the first word
	// has been resolved by the player.
	ArmOnFirstSelection bool
	Rand                Rand
	Listener            func(Event)
}

// Round resolves one question/answer pair word by word against a
// countdown, under a fixed life budget. A Round is not safe for
// concurrent use; its owner serializes access.
type Round struct {
	opts Options

	question string
	words    []string
	pool     []string
	maxLives int
	lives    int
	index    int
	outcomes []domain.WordOutcome
	choices  []string
	progress float64
	armed    bool
	status   domain.RoundStatus
}

// NewRound returns a round in the not-started state.
func NewRound(opts Options) *Round {
	if opts.Schedule == (TimerSchedule{}) {
		opts.Schedule = DefaultSchedule
	}
	if opts.Rand == nil {
		opts.Rand = DefaultRand
	}
	return &Round{opts: opts, status: domain.RoundNotStarted}
}

// Start initializes the round. The answer must hold at least one word and
// maxLives must be positive; a short distractor pool only shrinks the
// choice sets.
func (r *Round) Start(question, answer string, pool []string, maxLives int) error {
	if r.status != domain.RoundNotStarted {
		return domain.ErrRoundStarted
	}
	words := strings.Fields(answer)
	if len(words) == 0 {
		return fmt.Errorf("%w: empty answer", domain.ErrInvalidArgument)
	}
	if maxLives < 1 {
		return fmt.Errorf("%w: max lives %d", domain.ErrInvalidArgument, maxLives)
	}

	r.question = question
	r.words = words
	r.pool = append([]string(nil), pool...)
	r.maxLives = maxLives
	r.lives = maxLives
	r.index = 0
	r.outcomes = make([]domain.WordOutcome, 0, len(words))
	r.progress = 0
	r.armed = !r.opts.ArmOnFirstSelection
	r.status = domain.RoundInProgress
	r.drawChoices()
	return nil
}

// Status returns the lifecycle state.
func (r *Round) Status() domain.RoundStatus { return r.status }

// Lives returns the remaining lives.
func (r *Round) Lives() int { return r.lives }

// WordIndex is the number of words resolved so far.
func (r *Round) WordIndex() int { return r.index }

// Progress is the countdown for the current word, in [0,100].
func (r *Round) Progress() float64 { return r.progress }

// Outcomes returns a copy of the resolved words.
func (r *Round) Outcomes() []domain.WordOutcome {
	return append([]domain.WordOutcome(nil), r.outcomes...)
}

// PresentChoices returns the candidates for the next word: the expected
// word plus up to two distinct distractors, shuffled. The set is drawn once
// per word so ordinals stay stable until the word resolves.
func (r *Round) PresentChoices() []string {
	return append([]string(nil), r.choices...)
}

func (r *Round) drawChoices() {
	correct := strings.ToLower(r.words[r.index])
	seen := map[string]struct{}{correct: {}}
	wrong := make([]string, 0, len(r.pool))
	for _, w := range r.pool {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		wrong = append(wrong, w)
	}

	choices := append([]string{correct}, pick(r.opts.Rand, wrong, maxDistractors)...)
	Shuffle(r.opts.Rand, choices)
	r.choices = choices
}

// SelectWord resolves the current word with the player's pick. The
// comparison is case-insensitive. Terminal rounds ignore the call.
func (r *Round) SelectWord(word string) {
	if r.status != domain.RoundInProgress {
		return
	}
	if strings.EqualFold(strings.TrimSpace(word), r.words[r.index]) {
		r.resolve(domain.OutcomeCorrect)
		return
	}
	r.resolve(domain.OutcomeIncorrect)
}

// SelectChoice selects the presented choice at ordinal (0-based). Out of
// range ordinals are ignored.
func (r *Round) SelectChoice(ordinal int) {
	if r.status != domain.RoundInProgress || ordinal < 0 || ordinal >= len(r.choices) {
		return
	}
	r.SelectWord(r.choices[ordinal])
}

// Tick advances the countdown for the current word. Running out of time
// counts as an incorrect selection; at most one word times out per tick.
func (r *Round) Tick(elapsed time.Duration) {
	if r.status != domain.RoundInProgress || !r.armed || elapsed <= 0 {
		return
	}
	r.progress += float64(elapsed) / float64(r.opts.Schedule.Duration(r.index)) * 100
	if r.progress >= 100 {
		r.progress = 100
		r.resolve(domain.OutcomeIncorrect)
	}
}

// ForceEnd drains all lives and loses the round. Terminal rounds are left
// untouched.
func (r *Round) ForceEnd() {
	if r.status != domain.RoundInProgress {
		return
	}
	r.lives = 0
	r.lose()
}

func (r *Round) resolve(outcome domain.Outcome) {
	expected := r.words[r.index]
	r.outcomes = append(r.outcomes, domain.WordOutcome{Word: expected, Outcome: outcome})
	r.index++
	r.progress = 0
	r.armed = true

	if outcome == domain.OutcomeCorrect {
		r.emit(domain.EventCorrect, expected)
	} else {
		r.lives--
		r.emit(domain.EventIncorrect, expected)
	}

	switch {
	case r.lives <= 0:
		r.lives = 0
		r.lose()
	case r.index == len(r.words):
		r.status = domain.RoundWon
		r.choices = nil
		r.emit(domain.EventRoundWon, "")
	default:
		r.drawChoices()
	}
}

func (r *Round) lose() {
	r.status = domain.RoundLost
	r.choices = nil
	r.progress = 0
	r.emit(domain.EventRoundLost, "")
}

func (r *Round) emit(kind domain.EventKind, word string) {
	if r.opts.Listener == nil {
		return
	}
	r.opts.Listener(Event{Kind: kind, Word: word, WordIndex: r.index})
}

// Snapshot returns a read-only view of the round. Geometry and selection
// are filled in by the owning session.
func (r *Round) Snapshot() domain.RoundSnapshot {
	snap := domain.RoundSnapshot{
		Question:  r.question,
		WordCount: len(r.words),
		WordIndex: r.index,
		Lives:     r.lives,
		MaxLives:  r.maxLives,
		Outcomes:  r.Outcomes(),
		Choices:   r.PresentChoices(),
		Progress:  r.progress,
		Armed:     r.armed,
		Status:    r.status,
	}
	if r.status == domain.RoundLost && r.index < len(r.words) {
		snap.Reveal = append([]string(nil), r.words[r.index:]...)
	}
	return snap
}
