package session

import "strings"

// Accumulator collects streamed fragments of the in-flight operation. The
// buffer is display-only and is never parsed into a survey.
type Accumulator struct {
	buf  strings.Builder
	op   uint64
	open bool
}

// Begin clears the buffer and opens a new operation.
func (a *Accumulator) Begin() uint64 {
	a.buf.Reset()
	a.op++
	a.open = true
	return a.op
}

// Append adds fragment in arrival order. Fragments arriving when no
// operation is open belong to a superseded operation and are dropped.
func (a *Accumulator) Append(fragment string) bool {
	if !a.open {
		return false
	}
	a.buf.WriteString(fragment)
	return true
}

// Finish closes the current operation.
func (a *Accumulator) Finish() {
	a.open = false
}

func (a *Accumulator) Open() bool { return a.open }

func (a *Accumulator) Op() uint64 { return a.op }

func (a *Accumulator) Text() string { return a.buf.String() }
