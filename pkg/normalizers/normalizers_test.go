package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase and trim",
			input:    "  Northwind Traders  ",
			expected: "northwind traders",
		},
		{
			name:     "punctuation stripped",
			input:    "Northwind Traders, Inc.",
			expected: "northwind traders inc",
		},
		{
			name:     "whitespace collapsed",
			input:    "Acme   &   Sons",
			expected: "acme sons",
		},
		{
			name:     "digits kept",
			input:    "42 North LLC",
			expected: "42 north llc",
		},
		{
			name:     "unicode letters kept",
			input:    "Café Müller GmbH",
			expected: "café müller gmbh",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "punctuation only",
			input:    "---",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AccountName(tt.input))
		})
	}
}

func TestEmailDomain(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain address",
			input:    "jane@northwind.example",
			expected: "northwind.example",
		},
		{
			name:     "uppercase normalized",
			input:    "Jane@Northwind.Example",
			expected: "northwind.example",
		},
		{
			name:     "trailing dot trimmed",
			input:    "jane@northwind.example.",
			expected: "northwind.example",
		},
		{
			name:     "quoted local part with at sign",
			input:    `"jane@home"@northwind.example`,
			expected: "northwind.example",
		},
		{
			name:     "no at sign",
			input:    "not-an-email",
			expected: "",
		},
		{
			name:     "at sign with empty domain",
			input:    "jane@",
			expected: "",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EmailDomain(tt.input))
		})
	}
}

func TestRegistrableLabel(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		expected string
	}{
		{
			name:     "two label domain",
			domain:   "northwind.example",
			expected: "northwind",
		},
		{
			name:     "subdomain ignored",
			domain:   "mail.northwind.example",
			expected: "northwind",
		},
		{
			name:     "multi label public suffix",
			domain:   "northwind.co.uk",
			expected: "northwind",
		},
		{
			name:     "subdomain with multi label suffix",
			domain:   "www.northwind.co.uk",
			expected: "northwind",
		},
		{
			name:     "single label",
			domain:   "localhost",
			expected: "localhost",
		},
		{
			name:     "bare public suffix",
			domain:   "co.uk",
			expected: "",
		},
		{
			name:     "empty input",
			domain:   "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RegistrableLabel(tt.domain))
		})
	}
}
