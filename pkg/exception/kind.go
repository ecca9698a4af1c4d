package exception

import "errors"

// Class is a coarse error category used for logging and counters.
type Class string

const (
	ClassNone              Class = ""
	ClassUnknownOrder      Class = "unknown_order"
	ClassInvalidTransition Class = "invalid_transition"
	ClassInvalidFill       Class = "invalid_fill"
	ClassUnknownEvent      Class = "unknown_event"
	ClassSchedulerAction   Class = "scheduler_action_failure"
	ClassHedgeEscalation   Class = "hedge_escalation"
	ClassConfiguration     Class = "configuration"
	ClassPositionLimit     Class = "position_limit"
	ClassRisk              Class = "risk"
	ClassQueue             Class = "queue"
	ClassOther             Class = "other"
)

var classes = []struct {
	target error
	class  Class
}{
	{ErrUnknownOrder, ClassUnknownOrder},
	{ErrInvalidTransition, ClassInvalidTransition},
	{ErrInvalidFill, ClassInvalidFill},
	{ErrUnknownEvent, ClassUnknownEvent},
	{ErrHedgeEscalation, ClassHedgeEscalation},
	{ErrConfiguration, ClassConfiguration},
	{ErrPositionLimit, ClassPositionLimit},
	{ErrRiskRejected, ClassRisk},
	{ErrQueueFull, ClassQueue},
	{ErrQueueClosed, ClassQueue},
	{ErrSchedulerActionFailure, ClassSchedulerAction},
}

// Classify maps err onto its taxonomy class. Specific classes win over the
// scheduler wrapper, so a failed action that carries an escalation reports as one.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	for _, c := range classes {
		if errors.Is(err, c.target) {
			return c.class
		}
	}
	return ClassOther
}

// Classes lists every class Classify can return for a non-nil error.
func Classes() []Class {
	out := make([]Class, 0, len(classes)+1)
	seen := make(map[Class]bool, len(classes))
	for _, c := range classes {
		if !seen[c.class] {
			seen[c.class] = true
			out = append(out, c.class)
		}
	}
	return append(out, ClassOther)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
