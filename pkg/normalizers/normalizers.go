// Package normalizers provides the canonical forms used for matching:
// account names, email addresses and email domains.
package normalizers

import (
	"strings"
	"unicode"
)

// AccountName normalizes an account name for comparison: lowercase,
// punctuation stripped, whitespace collapsed to single spaces.
func AccountName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// Email normalizes an email address (lowercase, trim)
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EmailDomain returns the normalized domain of an email address, or ""
// when the address has no usable domain part.
func EmailDomain(email string) string {
	email = Email(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return Domain(email[at+1:])
}

// Domain normalizes a bare domain: lowercase, trimmed, trailing dot removed
func Domain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	return s
}

// Multi-label public suffixes we see in CRM data. Full PSL handling is not
// needed for matching; a wrong label only lowers fuzzy similarity.
var multiLabelSuffixes = map[string]bool{
	"co.uk":  true,
	"org.uk": true,
	"ac.uk":  true,
	"com.au": true,
	"net.au": true,
	"co.nz":  true,
	"co.jp":  true,
	"co.in":  true,
	"com.br": true,
	"com.mx": true,
	"com.sg": true,
}

// RegistrableLabel returns the organization label of a domain: "northwind"
// for "mail.northwind.example" or "northwind.co.uk". Returns "" when the
// domain has no label beyond its public suffix.
func RegistrableLabel(domain string) string {
	domain = Domain(domain)
	if domain == "" {
		return ""
	}

	labels := strings.Split(domain, ".")
	if len(labels) == 1 {
		return labels[0]
	}

	suffixLen := 1
	if multiLabelSuffixes[strings.Join(labels[len(labels)-2:], ".")] {
		suffixLen = 2
	}

	if len(labels) <= suffixLen {
		return ""
	}
	return labels[len(labels)-suffixLen-1]
}
