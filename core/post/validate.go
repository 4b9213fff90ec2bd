package post

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTitleLen is the maximum title length in characters.
const MaxTitleLen = 200

// AllChannels is the channel input word that selects every configured channel.
const AllChannels = "all"

var (
	ErrTitleTooLong     = errors.New("title too long")
	ErrInvalidLink      = errors.New("link must start with http:// or https://")
	ErrInvalidChannel   = errors.New("invalid channel name")
	ErrNoChannels       = errors.New("no channels selected")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrMissingField     = errors.New("missing field")
	ErrAmbiguousPayload = errors.New("post has both a file and a link")
)

// ValidationError describes a rejected field value.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var channelPattern = regexp.MustCompile(`^@?[A-Za-z0-9_]+$`)

// ValidateTitle trims the title and checks its length.
func ValidateTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Field: "title", Err: ErrMissingField}
	}
	if utf8.RuneCountInString(s) > MaxTitleLen {
		return "", &ValidationError{Field: "title", Err: ErrTitleTooLong}
	}
	return s, nil
}

// ValidateLink trims the link and checks its scheme.
func ValidateLink(s string) (string, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(s, "http://")
	}
	if !ok || rest == "" || strings.ContainsAny(s, " \t\n") {
		return "", &ValidationError{Field: "link", Value: s, Err: ErrInvalidLink}
	}
	return s, nil
}

// NormalizeChannel validates a channel token and returns it with a
// leading "@".
func NormalizeChannel(tok string) (string, error) {
	tok = strings.TrimSpace(tok)
	if !channelPattern.MatchString(tok) {
		return "", &ValidationError{Field: "channel", Value: tok, Err: ErrInvalidChannel}
	}
	if !strings.HasPrefix(tok, "@") {
		tok = "@" + tok
	}
	return tok, nil
}

// ParseChannels parses whitespace- or comma-separated channel tokens.
// The word "all" selects every entry of all. Duplicates are dropped,
// comparing names case-insensitively.
func ParseChannels(text string, all []string) ([]string, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(fields) == 1 && strings.EqualFold(fields[0], AllChannels) {
		if len(all) == 0 {
			return nil, &ValidationError{Field: "channels", Err: ErrNoChannels}
		}
		return append([]string(nil), all...), nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		ch, err := NormalizeChannel(f)
		if err != nil {
			return nil, err
		}
		k := strings.ToLower(ch)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ch)
	}
	if len(out) == 0 {
		return nil, &ValidationError{Field: "channels", Err: ErrNoChannels}
	}
	return out, nil
}
