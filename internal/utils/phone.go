package utils

import "strings"

// NormalizePhone reduces a channel address (JID or phone) to a bare
// digit string: "6281234567890:12@s.whatsapp.net" -> "6281234567890".
func NormalizePhone(address string) string {
	if at := strings.Index(address, "@"); at >= 0 {
		address = address[:at]
	}
	if colon := strings.Index(address, ":"); colon >= 0 {
		address = address[:colon]
	}
	return strings.TrimPrefix(address, "+")
}
