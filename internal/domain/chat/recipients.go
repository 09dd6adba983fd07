package chat

// RecipientSet is the ordered list of user ids that should be notified
// about a message. It never contains the sender. An empty set is valid
// and means there is nobody to notify.
type RecipientSet []string

// IsEmpty reports whether there are no recipients.
func (r RecipientSet) IsEmpty() bool {
	return len(r) == 0
}

// Contains reports whether userID is in the set.
func (r RecipientSet) Contains(userID string) bool {
	for _, id := range r {
		if id == userID {
			return true
		}
	}
	return false
}

// ResolveRecipients derives the recipients of msg in c.
//
// Group chats notify every member except the sender. Direct chats notify
// the explicit receiver when the message names one and otherwise fall back
// to the member list minus the sender.
//
// System messages are filtered out by the caller before this is reached.
func ResolveRecipients(c *Chat, msg Message) RecipientSet {
	if c == nil {
		return RecipientSet{}
	}

	if !c.IsGroup && msg.HasReceiver() {
		if *msg.ReceiverID == msg.SenderID {
			return RecipientSet{}
		}
		return RecipientSet{*msg.ReceiverID}
	}

	return membersExcept(c.MemberIDs, msg.SenderID)
}

// membersExcept keeps member order, drops the sender, blanks and duplicates.
func membersExcept(members []string, senderID string) RecipientSet {
	out := make(RecipientSet, 0, len(members))
	seen := make(map[string]struct{}, len(members))

	for _, id := range members {
		if id == "" || id == senderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
