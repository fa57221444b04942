package model

import (
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

// LifecycleEvent is an input to the consultation state machine.
type LifecycleEvent string

const (
	EventBook          LifecycleEvent = "book"
	EventReschedule    LifecycleEvent = "reschedule"
	EventMarkMissed    LifecycleEvent = "mark_missed"
	EventMarkCompleted LifecycleEvent = "mark_completed"
	EventCancel        LifecycleEvent = "cancel"
)

// StatusNone is the state of a consultation that does not exist yet.
const StatusNone ConsultationStatus = ""

// Scheduled → {Rescheduled, Missed, Completed, Canceled}
// Rescheduled → {Rescheduled, Missed, Completed, Canceled}
// Missed, Completed, Canceled are terminal.
var transitions = map[ConsultationStatus]map[LifecycleEvent]ConsultationStatus{
	StatusNone: {
		EventBook: ConsultationStatusScheduled,
	},
	ConsultationStatusScheduled: {
		EventReschedule:    ConsultationStatusRescheduled,
		EventMarkMissed:    ConsultationStatusMissed,
		EventMarkCompleted: ConsultationStatusCompleted,
		EventCancel:        ConsultationStatusCanceled,
	},
	ConsultationStatusRescheduled: {
		EventReschedule:    ConsultationStatusRescheduled,
		EventMarkMissed:    ConsultationStatusMissed,
		EventMarkCompleted: ConsultationStatusCompleted,
		EventCancel:        ConsultationStatusCanceled,
	},
}

// Transition returns the status reached by applying ev to from. Marking an
// already-missed consultation missed again is AlreadyMissed; every other
// unlisted pair is InvalidTransition.
func Transition(from ConsultationStatus, ev LifecycleEvent) (ConsultationStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	if from == ConsultationStatusMissed && ev == EventMarkMissed {
		return from, apperrors.AlreadyMissed()
	}
	name := string(from)
	if from == StatusNone {
		name = "none"
	}
	return from, apperrors.InvalidTransition(name, string(ev))
}

// CanTransition reports whether ev is legal from the given status.
func CanTransition(from ConsultationStatus, ev LifecycleEvent) bool {
	_, ok := transitions[from][ev]
	return ok
}
