package domain

import (
	"fmt"
	"strings"
	"time"
)

// Question is a prompt whose answer the player rebuilds word by word.
type Question struct {
	ID     string `json:"id" yaml:"id"`
	Prompt string `json:"prompt" yaml:"prompt"`
	Answer string `json:"answer" yaml:"answer"`
}

// Words splits the answer into the sequence the player has to pick.
func (q Question) Words() []string {
	return strings.Fields(q.Answer)
}

// Bank is a fixed question set plus the filler words used as distractors.
type Bank struct {
	ID        string     `json:"id" yaml:"id"`
	Questions []Question `json:"questions" yaml:"questions"`
	Fillers   []string   `json:"fillers" yaml:"fillers"`
}

// Question looks a question up by id.
func (b Bank) Question(id string) (Question, bool) {
	for _, q := range b.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Validate rejects banks that could never be played: no questions,
// duplicate ids or empty answers.
func (b Bank) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("%w: bank id is empty", ErrInvalidBank)
	}
	if len(b.Questions) == 0 {
		return fmt.Errorf("%w: bank %q has no questions", ErrInvalidBank, b.ID)
	}
	seen := make(map[string]struct{}, len(b.Questions))
	for i, q := range b.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question #%d has no id", ErrInvalidBank, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidBank, q.ID)
		}
		seen[q.ID] = struct{}{}
		if len(q.Words()) == 0 {
			return fmt.Errorf("%w: question %q has an empty answer", ErrInvalidBank, q.ID)
		}
	}
	return nil
}

// BankInfo is the public view of a bank; answers are never exposed.
type BankInfo struct {
	ID        string `json:"id"`
	Questions int    `json:"questions"`
	Fillers   int    `json:"fillers"`
}

// Info summarizes the bank.
func (b Bank) Info() BankInfo {
	return BankInfo{ID: b.ID, Questions: len(b.Questions), Fillers: len(b.Fillers)}
}

// RoundStatus is the lifecycle state of a single round.
type RoundStatus string

const (
	RoundNotStarted RoundStatus = "not-started"
	RoundInProgress RoundStatus = "in-progress"
	RoundWon        RoundStatus = "won"
	RoundLost       RoundStatus = "lost"
)

// Terminal reports whether no further transitions are possible.
func (s RoundStatus) Terminal() bool {
	return s == RoundWon || s == RoundLost
}

// Outcome is how a single answer word was resolved.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// WordOutcome records a resolved word. Incorrect outcomes carry the
// expected word, not the player's guess.
type WordOutcome struct {
	Word    string  `json:"word"`
	Outcome Outcome `json:"outcome"`
}

// RoundSnapshot is a read-only view of a round for the presentation layer.
type RoundSnapshot struct {
	ID         string        `json:"id"`
	QuestionID string        `json:"questionId"`
	Question   string        `json:"question"`
	WordCount  int           `json:"wordCount"`
	WordIndex  int           `json:"wordIndex"`
	Lives      int           `json:"lives"`
	MaxLives   int           `json:"maxLives"`
	Outcomes   []WordOutcome `json:"outcomes"`
	Choices    []string      `json:"choices"`
	Reveal     []string      `json:"reveal,omitempty"` // unanswered words, only once lost
	Progress   float64       `json:"progress"`
	Armed      bool          `json:"armed"`
	Status     RoundStatus   `json:"status"`
	X          float64       `json:"x"`
	Y          float64       `json:"y"`
	Width      float64       `json:"width"`
	Height     float64       `json:"height"`
	Selected   bool          `json:"selected"`
}

// SessionStatus is the lifecycle state of a play session.
type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionPlaying SessionStatus = "playing"
	SessionOver    SessionStatus = "over"
)

// SessionResult is set once a session is over.
type SessionResult string

const (
	ResultNone SessionResult = ""
	ResultWon  SessionResult = "won"
	ResultLost SessionResult = "lost"
)

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID              string          `json:"id"`
	BankID          string          `json:"bankId"`
	Status          SessionStatus   `json:"status"`
	Result          SessionResult   `json:"result,omitempty"`
	Failures        int             `json:"failures"`
	FailureCap      int             `json:"failureCap"`
	Completed       int             `json:"completed"`
	Total           int             `json:"total"`
	SelectedRoundID string          `json:"selectedRoundId,omitempty"`
	Rounds          []RoundSnapshot `json:"rounds"`
	ElapsedMs       int64           `json:"elapsedMs"`
}

// EventKind names something that happened during play.
type EventKind string

const (
	EventCorrect     EventKind = "correct"
	EventIncorrect   EventKind = "incorrect"
	EventRoundWon    EventKind = "won"
	EventRoundLost   EventKind = "lost"
	EventSpawned     EventKind = "spawned"
	EventSessionOver EventKind = "session_over"
)

// Cue is the sound the client should play for an event kind. Playback
// is fire-and-forget on the client side.
func (k EventKind) Cue() string {
	switch k {
	case EventCorrect:
		return "xp"
	case EventIncorrect:
		return "hurt"
	case EventRoundWon:
		return "win"
	case EventRoundLost:
		return "death"
	case EventSessionOver:
		return "game_over"
	}
	return ""
}

// Event is emitted by rounds and sessions to subscribers.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId"`
	RoundID   string    `json:"roundId,omitempty"`
	Word      string    `json:"word,omitempty"`
	Cue       string    `json:"cue,omitempty"`
	At        time.Time `json:"at"`
}

// SessionSummary is what is kept after a session has ended.
type SessionSummary struct {
	SessionID string        `json:"sessionId"`
	BankID    string        `json:"bankId"`
	Result    SessionResult `json:"result"`
	Failures  int           `json:"failures"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
}
