package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room exists at the requested code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotResolved is returned when an intent runs before the room has been read.
	ErrRoomNotResolved = errors.New("room not resolved yet")
	// ErrNotHost rejects room-level transitions requested by anyone but the host.
	ErrNotHost = errors.New("only the host may do that")
	// ErrRoomFull is returned when a join would exceed the room's player limit.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomFinished is returned when joining a room whose battle is over.
	ErrRoomFinished = errors.New("room already finished")
	// ErrIdentityRequired is returned when the local player id or name is missing.
	ErrIdentityRequired = errors.New("player id and name are required")
	// ErrInvalidConfig indicates a room config that cannot be created.
	ErrInvalidConfig = errors.New("invalid room config")
	// ErrNotEnoughQuestions indicates the catalog cannot satisfy a selection.
	ErrNotEnoughQuestions = errors.New("not enough questions")
	// ErrQuestionNotFound indicates question content could not be loaded.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadyFinished is returned by a runtime that already produced its result.
	ErrAlreadyFinished = errors.New("quiz already finished")
	// ErrNotFound is returned by stores for absent values.
	ErrNotFound = errors.New("not found")
)

var (
	// ErrUnknownReaction rejects reactions outside the fixed emoji set.
	ErrUnknownReaction = errors.New("unknown reaction")
	// ErrWrongMode is returned for runtime operations that do not apply to the quiz mode.
	ErrWrongMode = errors.New("operation not available in this quiz mode")
	// ErrNotAnswered is returned when moving past a question that has not been locked.
	ErrNotAnswered = errors.New("question not answered yet")
)
