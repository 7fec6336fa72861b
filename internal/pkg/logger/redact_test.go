package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"+14155550123", "+1********23"},
		{"+442071838750", "+4*********50"},
		{"4155550123", "********23"},
		{"+1", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, RedactPhone(tt.in))
		})
	}
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactPIIValue(t *testing.T) {
	assert.Equal(t, "+1********23", redactPIIValue("contact_phone", "+14155550123"))
	assert.Equal(t, "sa***@lakesidedental.com", redactPIIValue("email", "sarah@lakesidedental.com"))
	assert.Equal(t, "dialing +1********23 now", redactPIIValue("msg", "dialing +14155550123 now"))
}
