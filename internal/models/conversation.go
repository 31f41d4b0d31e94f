package models

import (
	"sort"
	"strings"
)

// ConversationID derives the canonical id of a 1:1 conversation from its two
// participants. The id is a pure function of the pair: ConversationID(a, b)
// and ConversationID(b, a) are always equal, so no conversation entity is
// ever stored.
func ConversationID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// ConversationParticipants splits a derived conversation id back into its two
// participant ids.
func ConversationParticipants(conversationID string) (string, string, bool) {
	parts := strings.SplitN(conversationID, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
