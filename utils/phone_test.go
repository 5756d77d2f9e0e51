package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		defaultCountry string
		want           string
	}{
		{"empty input", "", "1", ""},
		{"national number gets country prefix", "(212) 555-0142", "1", "+12125550142"},
		{"already qualified 11 digits", "12125550142", "1", "+12125550142"},
		{"plus and spaces stripped", "+44 20 7946 0958", "1", "+442079460958"},
		{"leading trunk zero dropped", "07700900123", "44", "+447700900123"},
		{"extension marker x cut", "2125550142x99", "1", "+12125550142"},
		{"extension marker ext cut", "212-555-0142 ext 7", "1", "+12125550142"},
		{"comma pause cut", "2125550142,,12", "1", "+12125550142"},
		{"seven digit local number kept bare", "555-0142", "1", "+5550142"},
		{"too short", "12345", "1", ""},
		{"letters only", "unknown", "1", ""},
		{"empty default country falls back to 1", "2125550142", "", "+12125550142"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw, tt.defaultCountry))
		})
	}
}

func TestCallerKey(t *testing.T) {
	phoneKey := CallerKey("+12125550142", "")
	assert.Len(t, phoneKey, 64)
	assert.Equal(t, phoneKey, CallerKey("+12125550142", "someone@example.com"),
		"phone wins over email when both are present")

	emailKey := CallerKey("", "Someone@Example.com")
	assert.Len(t, emailKey, 64)
	assert.Equal(t, emailKey, CallerKey("", "someone@example.com"),
		"email keys are case-insensitive")
	assert.NotEqual(t, phoneKey, emailKey)

	assert.Empty(t, CallerKey("", ""))
	assert.Empty(t, CallerKey("", "   "))
}
