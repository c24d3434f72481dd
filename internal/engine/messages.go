package engine

import (
	"fmt"
	"strings"
)

// Reply texts. The confirmation contract is numeric: "1" confirms, anything
// else starts the dialog over.
const (
	msgHelp = "Welcome to the class registration service! Please send your 8-digit class code to get started. If you don't have a code, contact us on %s."

	msgLookupFailed = "Sorry, something went wrong on our side. Please try again in a few minutes or contact us on %s."

	msgAlreadyEnrolled = "You are already registered, so we have enrolled you in %s right away. Happy learning!"

	msgEnrolExistingFailed = "You are already registered, but we couldn't complete the enrolment just now. Please contact us on %s and we'll sort it out."

	msgGroupInvite = "%s\nJoin the group here: %s"

	msgAskGrade = "Great, that code is for %s. Which grade are you in?"

	msgAskFirstName = "Great, that code is for %s. What is your first name?"

	msgFirstNameTooShort = "That looks a bit short for a name. Please send your full first name."

	msgAskLastName = "Thanks %s! And your last name?"

	msgConfirmTemplate = "Please check your details:\n" +
		"Name: %s %s\n" +
		"Grade: %s\n" +
		"Class: %s\n" +
		"Username: %s\n" +
		"Password: %s\n\n" +
		"Reply 1 to confirm, or anything else to start over."

	msgAlreadyRegistered = "This number is already registered. If you think this is a mistake, contact us on %s."

	msgRegistered = "All done, %s! Your account is ready and you are enrolled in %s. Log in with username %s and your password. Welcome aboard!"

	msgRegisteredEnrolFailed = "Your account was created, but the class enrolment didn't go through. Please contact us on %s and we'll finish it for you."

	msgRegisterFailed = "Sorry, we couldn't create your account just now. Please try again in a few minutes or contact us on %s."

	msgStartOver = "No problem, let's start again. What is your first name?"
)

// normalizeCode strips everything but letters and digits so codes survive
// stray punctuation and whitespace in the first message.
func normalizeCode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func withContact(template, contact string) string {
	return fmt.Sprintf(template, contact)
}
