// Package session provides the in-memory per-user conversation state and the
// per-user lock that serializes turns from the same sender.
package session

// Step identifies a finite-state-machine step of the registration dialog.
type Step string

const (
	// StepGreeting is both the initial and the terminal step: a sender with
	// no session is equivalent to a sender at StepGreeting.
	StepGreeting Step = "greeting"
	// StepGetGrade asks for the grade when the enrollment record does not carry one.
	StepGetGrade Step = "getGrade"
	// StepGetFirstName asks for the first name.
	StepGetFirstName Step = "getFirstName"
	// StepGetLastName asks for the last name; the WhatsApp number itself is
	// taken from the sender address, never asked as free text.
	StepGetLastName Step = "getLastName"
	// StepConfirmDetails waits for the confirmation token.
	StepConfirmDetails Step = "confirmDetails"
)

// Direction marks a transcript entry as inbound or outbound.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Entry is one line of the conversation transcript.
type Entry struct {
	Direction Direction
	Body      string
}

// Session tracks one sender's registration dialog. It exists iff the dialog
// is unfinished; at the terminal step it is persisted and discarded.
type Session struct {
	Step       Step
	FirstName  string
	LastName   string
	Grade      string
	Username   string
	Password   string
	CourseName string
	CourseIDs  []int
	Transcript []Entry
}

// NewSession returns a fresh greeting-state session.
func NewSession() *Session {
	return &Session{Step: StepGreeting}
}

// Append records a transcript line.
func (s *Session) Append(dir Direction, body string) {
	s.Transcript = append(s.Transcript, Entry{Direction: dir, Body: body})
}
