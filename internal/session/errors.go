package session

import "errors"

var (
	ErrNotConnected      = errors.New("not connected")
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrInvalidPhase      = errors.New("action not allowed in current phase")
	ErrInvalidTarget     = errors.New("question index out of range")
	ErrInvalidDraftState = errors.New("survey draft cannot be used for regeneration")
	ErrNoDraft           = errors.New("no survey draft to save")
	ErrSaveInFlight      = errors.New("save already in progress")
	ErrAlreadySaved      = errors.New("survey already saved")
	ErrAlreadyOpen       = errors.New("session already open")
	ErrSendBufferFull    = errors.New("send buffer full")
)
