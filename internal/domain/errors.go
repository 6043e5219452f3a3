package domain

import "errors"

var (
	// ErrInvalidArgument is a caller contract violation, e.g. an empty answer
	// or a non-positive life budget when starting a round.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRoundStarted is returned when Start is called twice on a round.
	ErrRoundStarted = errors.New("round already started")
	// ErrInvalidBank indicates a question bank that cannot be played.
	ErrInvalidBank = errors.New("invalid question bank")
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrQuestionNotFound indicates a question id unknown to the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionCompleted rejects spawning a question that was already consumed.
	ErrQuestionCompleted = errors.New("question already completed")
	// ErrQuestionActive rejects spawning a question that is currently falling.
	ErrQuestionActive = errors.New("question already active")
	// ErrSessionNotFound is returned when a play session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotPlaying rejects spawns outside of active play.
	ErrSessionNotPlaying = errors.New("session not playing")
	// ErrSessionFull rejects spawns once the concurrency cap is reached.
	ErrSessionFull = errors.New("session at round capacity")
	// ErrRoundNotFound is returned for input aimed at a round that is gone.
	ErrRoundNotFound = errors.New("round not found")
)
