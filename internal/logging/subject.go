package logging

import "strings"

// FormatSubject builds the chat/pair subject string used in console output.
func FormatSubject(conversationID, pair string) string {
	conversationID = strings.TrimSpace(conversationID)
	pair = strings.TrimSpace(pair)
	switch {
	case conversationID != "" && pair != "":
		return "Chat " + conversationID + " (" + pair + ")"
	case conversationID != "":
		return "Chat " + conversationID
	case pair != "":
		return pair
	default:
		return ""
	}
}
