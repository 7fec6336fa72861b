package logger

import "strings"

// RedactPhone masks a phone number for safe logging, keeping the country
// code and the last two digits: "+14155550123" → "+1********23".
// Values too short to be phone numbers are fully masked.
func RedactPhone(phone string) string {
	if len(phone) < 6 {
		return "***"
	}
	keep := 2
	prefix := ""
	rest := phone
	if strings.HasPrefix(phone, "+") {
		// Keep the '+' and up to two country-code digits.
		prefix = phone[:2]
		rest = phone[2:]
	}
	masked := strings.Repeat("*", len(rest)-keep)
	return prefix + masked + rest[len(rest)-keep:]
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
