// Package domain contains the core ingestion model: version tokens,
// column signatures, geometry kinds and table naming.
package domain

import (
	"fmt"
	"strings"
)

// VersionToken identifies one distinct column signature within a geometry
// kind. Tokens are modeled as ordinals; the letter form ("verA".."verAZ")
// appears only at serialization boundaries (table names, audit log).
type VersionToken int

// Token ordinal bounds. The sequence runs A..Z then AA..AZ; AZ is the last
// representable token.
const (
	FirstVersionToken VersionToken = 0
	MaxVersionToken   VersionToken = 51

	versionPrefix = "ver"
	alphabetSize  = 26
)

// Valid returns true if the token is within the representable range.
func (t VersionToken) Valid() bool {
	return t >= FirstVersionToken && t <= MaxVersionToken
}

// Letters returns the bare letter form of the token (e.g. "A", "AZ").
func (t VersionToken) Letters() string {
	if !t.Valid() {
		return ""
	}
	if t < alphabetSize {
		return string(rune('A' + t))
	}
	return "A" + string(rune('A'+t-alphabetSize))
}

// String returns the serialized form used in table names ("verA").
func (t VersionToken) String() string {
	if !t.Valid() {
		return versionPrefix + "?"
	}
	return versionPrefix + t.Letters()
}

// Next returns the token following t. Minting past the last representable
// token is an error, never a silent wrap.
func (t VersionToken) Next() (VersionToken, error) {
	if t >= MaxVersionToken {
		return t, ErrVersionSpaceExhausted
	}
	return t + 1, nil
}

// ParseVersionToken parses the serialized "verX"/"verAX" form.
func ParseVersionToken(s string) (VersionToken, error) {
	letters, ok := strings.CutPrefix(s, versionPrefix)
	if !ok {
		return 0, fmt.Errorf("version token %q: %w", s, ErrInvalidInput)
	}
	return parseTokenLetters(letters)
}

func parseTokenLetters(letters string) (VersionToken, error) {
	switch len(letters) {
	case 1:
		c := letters[0]
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("version letters %q: %w", letters, ErrInvalidInput)
		}
		return VersionToken(c - 'A'), nil
	case 2:
		if letters[0] != 'A' || letters[1] < 'A' || letters[1] > 'Z' {
			return 0, fmt.Errorf("version letters %q: %w", letters, ErrInvalidInput)
		}
		return VersionToken(alphabetSize + letters[1] - 'A'), nil
	default:
		return 0, fmt.Errorf("version letters %q: %w", letters, ErrInvalidInput)
	}
}
