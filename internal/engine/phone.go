package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	senderPrefix  = "whatsapp:"
	countryPrefix = "+94"
)

// ErrMalformedSender indicates the transport-provided sender address cannot be
// turned into an LMS username. The turn is unrecoverable: without a username
// there is nothing to look up or register.
var ErrMalformedSender = errors.New("malformed sender address")

// DeriveUsername maps a sender address to the deterministic LMS username,
// which doubles as the initial password: "whatsapp:+94771234567" becomes
// "0771234567".
func DeriveUsername(from string) (string, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(from), senderPrefix)
	if !strings.HasPrefix(raw, countryPrefix) {
		return "", fmt.Errorf("%w: %q", ErrMalformedSender, from)
	}
	rest := raw[len(countryPrefix):]
	if len(rest) != 9 || !digitsOnly(rest) {
		return "", fmt.Errorf("%w: %q", ErrMalformedSender, from)
	}
	return "0" + rest, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// SplitCourseID expands a composite course identifier into the ids to enrol.
// Identifiers longer than two decimal digits encode two courses in their
// two-digit halves: 6070 means courses 60 and 70, never one course 6070.
//
// The convention cannot represent a sub-identifier with a leading zero and is
// ambiguous for three-digit values; codes are provisioned to avoid both.
func SplitCourseID(id int) []int {
	s := strconv.Itoa(id)
	if len(s) <= 2 {
		return []int{id}
	}
	first, _ := strconv.Atoi(s[:2])
	second, _ := strconv.Atoi(s[2:])
	return []int{first, second}
}
