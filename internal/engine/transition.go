package engine

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/learnsl/enrollbot/internal/directory"
	"github.com/learnsl/enrollbot/internal/session"
	"github.com/learnsl/enrollbot/internal/store"
)

var codePattern = regexp.MustCompile(`^\d{8}$`)

// Facts carries the collaborator results a single turn may depend on. The
// transition itself performs no I/O; the engine gathers facts up front and
// executes the returned action afterwards, so the state machine is testable
// with canned values.
type Facts struct {
	// Username derived from the sender address; empty when the step does
	// not need it.
	Username string
	// Course is the enrollment-code match from the relational catalog.
	Course *store.EnrollmentRecord
	// Group is the enrollment-code match from the group directory.
	Group *directory.GroupRecord
	// UserExists reports whether Username is already registered in the LMS.
	UserExists bool
	// UserID is the existing LMS user id when UserExists.
	UserID int
	// LookupFailed marks a course-catalog failure; the turn degrades to a
	// contact-support reply instead of propagating.
	LookupFailed bool
}

type action int

const (
	actionNone action = iota
	// actionEnrolExisting enrols the already-registered user immediately.
	actionEnrolExisting
	// actionRegister creates the LMS user, then enrols them.
	actionRegister
)

// outcome is the pure decision for one turn.
type outcome struct {
	next      session.Step
	reply     string
	media     []string
	action    action
	userID    int
	courseIDs []int
	// failReply replaces reply when the action's remote calls fail.
	failReply string
	// followUp schedules the delayed promotional message after a
	// successful actionRegister.
	followUp bool
}

// terminal reports whether the turn ends the dialog: any turn that leaves the
// machine back at greeting flushes the transcript and discards the session.
func (o outcome) terminal() bool {
	return o.next == session.StepGreeting
}

// transition interprets input for the session's current step, mutates the
// accumulated answers, and decides the next step, the reply, and the side
// effects to run. contact is the support contact shown in fallback messages.
func transition(sess *session.Session, input string, facts Facts, contact string) outcome {
	switch sess.Step {
	case session.StepGreeting:
		return transitionGreeting(sess, input, facts, contact)

	case session.StepGetGrade:
		sess.Grade = input
		return outcome{next: session.StepGetFirstName, reply: "Thanks! What is your first name?"}

	case session.StepGetFirstName:
		if tooShortName(input) {
			return outcome{next: session.StepGetFirstName, reply: msgFirstNameTooShort}
		}
		sess.FirstName = input
		return outcome{next: session.StepGetLastName, reply: fmt.Sprintf(msgAskLastName, sess.FirstName)}

	case session.StepGetLastName:
		sess.LastName = input
		sess.Username = facts.Username
		sess.Password = facts.Username
		summary := fmt.Sprintf(msgConfirmTemplate,
			sess.FirstName, sess.LastName, sess.Grade, sess.CourseName, sess.Username, sess.Password)
		return outcome{next: session.StepConfirmDetails, reply: summary}

	case session.StepConfirmDetails:
		return transitionConfirm(sess, input, facts, contact)

	default:
		// Unknown step resets to greeting.
		return outcome{next: session.StepGreeting, reply: withContact(msgHelp, contact)}
	}
}

func transitionGreeting(sess *session.Session, input string, facts Facts, contact string) outcome {
	code := normalizeCode(input)
	if !codePattern.MatchString(code) {
		return outcome{next: session.StepGreeting, reply: withContact(msgHelp, contact)}
	}

	if facts.LookupFailed {
		return outcome{next: session.StepGreeting, reply: withContact(msgLookupFailed, contact)}
	}

	switch {
	case facts.Course != nil && facts.UserExists:
		return outcome{
			next:      session.StepGreeting,
			reply:     fmt.Sprintf(msgAlreadyEnrolled, facts.Course.CourseName),
			action:    actionEnrolExisting,
			userID:    facts.UserID,
			courseIDs: SplitCourseID(facts.Course.CourseID),
			failReply: withContact(msgEnrolExistingFailed, contact),
		}

	case facts.Course != nil:
		sess.CourseName = facts.Course.CourseName
		sess.Grade = facts.Course.Grade
		sess.CourseIDs = SplitCourseID(facts.Course.CourseID)
		if sess.Grade == "" {
			return outcome{next: session.StepGetGrade, reply: fmt.Sprintf(msgAskGrade, sess.CourseName)}
		}
		return outcome{next: session.StepGetFirstName, reply: fmt.Sprintf(msgAskFirstName, sess.CourseName)}

	case facts.Group != nil:
		return outcome{
			next:  session.StepGreeting,
			reply: fmt.Sprintf(msgGroupInvite, facts.Group.CourseName, facts.Group.JoinLink),
		}

	default:
		return outcome{next: session.StepGreeting, reply: withContact(msgHelp, contact)}
	}
}

func transitionConfirm(sess *session.Session, input string, facts Facts, contact string) outcome {
	if strings.TrimSpace(input) != "1" {
		sess.FirstName = ""
		sess.LastName = ""
		return outcome{next: session.StepGetFirstName, reply: msgStartOver}
	}

	// Race guard: the user may have been registered since the greeting
	// lookup, by a retry or a parallel channel.
	if facts.UserExists {
		return outcome{next: session.StepGreeting, reply: withContact(msgAlreadyRegistered, contact)}
	}

	return outcome{
		next:      session.StepGreeting,
		reply:     fmt.Sprintf(msgRegistered, sess.FirstName, sess.CourseName, sess.Username),
		action:    actionRegister,
		courseIDs: sess.CourseIDs,
		failReply: withContact(msgRegisteredEnrolFailed, contact),
		followUp:  true,
	}
}

// tooShortName rejects inputs that are three or fewer letters with nothing
// else in them. The threshold is deliberately narrow; tune with care.
func tooShortName(input string) bool {
	runes := []rune(input)
	if len(runes) == 0 {
		return true
	}
	if len(runes) > 3 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
