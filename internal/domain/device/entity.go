// Package device models the address book that maps users to the push
// address of their installed application.
package device

import "strings"

// Entry is one address book record. An entry without a push address
// contributes nothing to a send.
type Entry struct {
	UserID      string
	PushAddress *string
}

// Address returns the trimmed push address and whether it is usable.
func (e *Entry) Address() (string, bool) {
	if e == nil || e.PushAddress == nil {
		return "", false
	}
	addr := strings.TrimSpace(*e.PushAddress)
	return addr, addr != ""
}
