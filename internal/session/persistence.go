package session

import "github.com/zhouzirui/z-survey/backend/internal/protocol"

// SaveState tracks whether the current draft has been persisted.
type SaveState int

const (
	SaveUnsaved SaveState = iota
	SaveSaving
	SaveSaved
)

func (s SaveState) String() string {
	switch s {
	case SaveSaving:
		return "saving"
	case SaveSaved:
		return "saved"
	default:
		return "unsaved"
	}
}

// SaveStatus carries the server-assigned identity once saved.
type SaveStatus struct {
	State    SaveState
	ID       int64
	PublicID string
	Title    string
}

// Persistence only reaches SaveSaved through Confirm, which is driven by a
// survey_saved acknowledgment.
type Persistence struct {
	status SaveStatus
}

func (p *Persistence) Status() SaveStatus { return p.status }

// Begin marks a save_survey request as sent.
func (p *Persistence) Begin() {
	p.status = SaveStatus{State: SaveSaving}
}

// Confirm records the acknowledgment.
func (p *Persistence) Confirm(saved protocol.SavedSurvey) {
	p.status = SaveStatus{
		State:    SaveSaved,
		ID:       saved.ID,
		PublicID: saved.PublicID,
		Title:    saved.Title,
	}
}

// Fail drops a pending save back to unsaved. It is a no-op otherwise.
func (p *Persistence) Fail() {
	if p.status.State == SaveSaving {
		p.status = SaveStatus{}
	}
}

// Invalidate is called whenever the draft is replaced.
func (p *Persistence) Invalidate() {
	p.status = SaveStatus{}
}
