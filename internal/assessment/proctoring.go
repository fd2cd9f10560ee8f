package assessment

import (
	"fmt"
	"strings"
)

// EventType enumerates the behavioural signals a client may report.
type EventType string

const (
	EventTabBlur          EventType = "TAB_BLUR"
	EventVisibilityHidden EventType = "VISIBILITY_HIDDEN"
	EventWindowBlur       EventType = "WINDOW_BLUR"
	EventCopy             EventType = "COPY"
	EventPaste            EventType = "PASTE"
	EventCut              EventType = "CUT"
	EventDevtools         EventType = "DEVTOOLS"
	EventUnusualBehavior  EventType = "UNUSUAL_BEHAVIOR"
	EventWebcamSnapshot   EventType = "WEBCAM_SNAPSHOT"
)

// EventCategory selects which counter an event feeds.
type EventCategory int

const (
	CategoryNone EventCategory = iota
	CategoryTabSwitch
	CategoryCopyPaste
	CategorySuspicious
)

// Flagging policy.
const (
	TabSwitchWarnThreshold  = 1
	TabSwitchFlagThreshold  = 3
	CopyPasteFlagThreshold  = 5
	SuspiciousFlagThreshold = 2
)

const (
	FlagReasonTabSwitches = "too many tab switches"
	FlagReasonCopyPaste   = "excessive copy/paste"
	FlagReasonSuspicious  = "suspicious behavior"
)

// NormalizeEventType upper-cases and trims a client supplied type.
func NormalizeEventType(raw string) EventType {
	return EventType(strings.ToUpper(strings.TrimSpace(raw)))
}

// Category maps the event onto a counter. Unknown types and webcam snapshots
// are logged but never counted.
func (t EventType) Category() EventCategory {
	switch t {
	case EventTabBlur, EventVisibilityHidden, EventWindowBlur:
		return CategoryTabSwitch
	case EventCopy, EventPaste, EventCut:
		return CategoryCopyPaste
	case EventDevtools, EventUnusualBehavior:
		return CategorySuspicious
	default:
		return CategoryNone
	}
}

// Counters holds the per-attempt proctoring tallies.
type Counters struct {
	TabSwitch  int `json:"tabSwitchCount"`
	CopyPaste  int `json:"copyPasteCount"`
	Suspicious int `json:"suspiciousCount"`
}

// ProctorDecision is the outcome of applying the policy after one event.
type ProctorDecision struct {
	Flag    bool
	Reason  string
	Message string
}

// Evaluate applies the flagging policy to already-incremented counters.
// Flagging is one-way: an attempt that is already flagged is never
// re-evaluated. Thresholds are checked tab switches first, then copy/paste,
// then suspicious events, and the first match wins.
func Evaluate(counters Counters, alreadyFlagged bool, category EventCategory) ProctorDecision {
	if alreadyFlagged {
		return ProctorDecision{}
	}

	decision := ProctorDecision{}
	if category == CategoryTabSwitch &&
		counters.TabSwitch >= TabSwitchWarnThreshold &&
		counters.TabSwitch < TabSwitchFlagThreshold {
		decision.Message = fmt.Sprintf("Please avoid switching tabs (%d/%d). You may be flagged.", counters.TabSwitch, TabSwitchFlagThreshold)
	}

	switch {
	case counters.TabSwitch >= TabSwitchFlagThreshold:
		decision = ProctorDecision{Flag: true, Reason: FlagReasonTabSwitches, Message: "You have been flagged due to too many tab switches. Please stay on the assessment page."}
	case counters.CopyPaste >= CopyPasteFlagThreshold:
		decision = ProctorDecision{Flag: true, Reason: FlagReasonCopyPaste, Message: "You have been flagged due to excessive copy/paste activity."}
	case counters.Suspicious >= SuspiciousFlagThreshold:
		decision = ProctorDecision{Flag: true, Reason: FlagReasonSuspicious, Message: "You have been flagged due to suspicious behavior."}
	}

	return decision
}
