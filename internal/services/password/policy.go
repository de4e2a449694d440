// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package password

import (
	"strings"
	"unicode"
)

// Violation codes double as i18n message ids.
const (
	CodeMinLength       = "password_min_length"
	CodeTooLong         = "password_too_long"
	CodeEntirelyNumeric = "password_entirely_numeric"
	CodeTooSimilar      = "password_too_similar"
)

// Policy validates passwords chosen by users.
type Policy struct {
	MinLength           int
	CheckUserSimilarity bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() *Policy {
	return &Policy{
		MinLength:           8,
		CheckUserSimilarity: true,
	}
}

// NewPolicy returns the default policy with the given minimum length.
func NewPolicy(minLength int) *Policy {
	p := DefaultPolicy()
	if minLength > 0 {
		p.MinLength = minLength
	}
	return p
}

// Validate returns the codes of all rules the password breaks.
// userAttributes are values like email and username the password must not resemble.
func (p *Policy) Validate(password string, userAttributes ...string) []string {
	var codes []string

	if len([]rune(password)) < p.MinLength {
		codes = append(codes, CodeMinLength)
	}
	if len(password) > MaxBytes {
		codes = append(codes, CodeTooLong)
	}
	if isEntirelyNumeric(password) {
		codes = append(codes, CodeEntirelyNumeric)
	}
	if p.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		codes = append(codes, CodeTooSimilar)
	}

	return codes
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return password != ""
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)
	if passwordLower == "" {
		return false
	}

	for _, attr := range attributes {
		attrLower := strings.ToLower(attr)
		// Emails are compared by their local part as well.
		if local, _, ok := strings.Cut(attrLower, "@"); ok && local != "" {
			if similar(passwordLower, local) {
				return true
			}
		}
		if similar(passwordLower, attrLower) {
			return true
		}
	}

	return false
}

func similar(password, attr string) bool {
	if len(attr) < 3 {
		return false
	}
	if strings.Contains(password, attr) || strings.Contains(attr, password) {
		return true
	}
	return similarity(password, attr) > 0.7
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	return float64(longestCommonSubsequence(a, b)) / float64(max(len(a), len(b)))
}

func longestCommonSubsequence(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
