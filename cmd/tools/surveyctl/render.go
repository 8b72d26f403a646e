package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/zhouzirui/z-survey/backend/internal/model/chat"
	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
	"github.com/zhouzirui/z-survey/backend/internal/session"
)

var (
	userColor      = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen)
	streamColor    = color.New(color.FgHiBlack)
	noticeColor    = color.New(color.FgYellow)
	phaseColor     = color.New(color.FgMagenta)
)

// renderer prints snapshot deltas. Subscriber callbacks arrive from both the
// REPL and the connection goroutine, so every write holds mu.
type renderer struct {
	mu         sync.Mutex
	out        io.Writer
	seq        uint64
	printed    int
	streamed   int
	lastPhase  session.Phase
	lastNotice string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, lastPhase: session.PhaseIdle}
}

func (r *renderer) render(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Seq < r.seq {
		return
	}
	r.seq = snap.Seq

	if snap.Phase.InFlight() {
		if len(snap.AccumulatedText) > r.streamed {
			streamColor.Fprint(r.out, snap.AccumulatedText[r.streamed:])
			r.streamed = len(snap.AccumulatedText)
		}
	} else if r.streamed > 0 {
		fmt.Fprintln(r.out)
		r.streamed = 0
	}

	for _, entry := range snap.Transcript[min(r.printed, len(snap.Transcript)):] {
		printEntry(r.out, entry)
	}
	r.printed = len(snap.Transcript)

	if snap.Notice != "" && snap.Notice != r.lastNotice {
		noticeColor.Fprintf(r.out, "! %s\n", snap.Notice)
	}
	r.lastNotice = snap.Notice

	if snap.Phase != r.lastPhase {
		phaseColor.Fprintf(r.out, "[%s]\n", snap.Phase)
		r.lastPhase = snap.Phase
		if snap.Phase == session.PhaseDone && snap.Draft != nil {
			writeDraft(r.out, *snap.Draft, snap.LastRegenerated)
		}
	}
}

func printEntry(w io.Writer, entry chat.Entry) {
	switch entry.Role {
	case chat.RoleUser:
		userColor.Fprintf(w, "you> %s\n", entry.Text)
	default:
		assistantColor.Fprintf(w, "bot> %s\n", entry.Text)
	}
}

// writeDraft prints the draft with 1-based question numbers. highlight marks
// the most recently regenerated question; -1 disables it.
func writeDraft(w io.Writer, d survey.Draft, highlight int) {
	color.New(color.Bold).Fprintln(w, d.Title)
	if d.Description != "" {
		fmt.Fprintln(w, d.Description)
	}
	for i, q := range d.Questions {
		marker := " "
		if i == highlight {
			marker = "*"
		}
		required := ""
		if q.Required {
			required = " (required)"
		}
		fmt.Fprintf(w, "%s%d. %s [%s]%s\n", marker, i+1, q.Text, q.Type, required)
		for _, opt := range q.Options {
			fmt.Fprintf(w, "     - %s\n", opt.Text)
		}
	}
}

func writeStatus(w io.Writer, snap session.Snapshot) {
	lines := []string{
		fmt.Sprintf("session:   %s", snap.ID),
		fmt.Sprintf("phase:     %s", snap.Phase),
		fmt.Sprintf("connected: %t", snap.Connected),
		fmt.Sprintf("save:      %s", snap.Save.State),
	}
	if snap.Save.State == session.SaveSaved {
		lines = append(lines, fmt.Sprintf("public id: %s", snap.Save.PublicID))
	}
	if snap.HasTarget {
		lines = append(lines, fmt.Sprintf("selected:  question %d", snap.Target+1))
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}
