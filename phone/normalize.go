package phone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// ChannelPrefix is the scheme marker the provider puts in front of chat-channel addresses.
const ChannelPrefix = "whatsapp:"

var ErrInvalidInput = errors.New("phone: empty or invalid number")

// Candidates is the ordered, de-duplicated set of equivalent representations of one raw number.
// It is used as a multi-value equality probe, never as a single key.
type Candidates []string

// Contains reports whether value is one of the candidate forms.
func (c Candidates) Contains(value string) bool {
	for _, v := range c {
		if v == value {
			return true
		}
	}
	return false
}

// Normalizer derives candidate sets for a home country.
type Normalizer struct {
	CountryCode    string // e.g. "91"
	NationalLength int    // digits in a national significant number, 0 when unknown
}

// ForRegion builds a Normalizer from a CLDR region code such as "IN".
func ForRegion(region string) (*Normalizer, error) {
	region = strings.ToUpper(strings.TrimSpace(region))
	cc := phonenumbers.GetCountryCodeForRegion(region)
	if cc == 0 {
		return nil, fmt.Errorf("phone: unknown region %q", region)
	}
	n := &Normalizer{CountryCode: strconv.Itoa(cc)}
	if example := phonenumbers.GetExampleNumberForType(region, phonenumbers.MOBILE); example != nil {
		n.NationalLength = len(phonenumbers.GetNationalSignificantNumber(example))
	}
	return n, nil
}

// Normalize returns every form of raw that could plausibly be stored as a contact number.
//
// The first element is always the cleaned input itself.
func (n *Normalizer) Normalize(raw string) (Candidates, error) {
	s := clean(raw)
	if s == "" {
		return nil, ErrInvalidInput
	}

	var out Candidates
	add := func(v string) {
		if v != "" && !out.Contains(v) {
			out = append(out, v)
		}
	}

	add(s)
	if n.CountryCode != "" {
		add(strings.TrimPrefix(s, "+"+n.CountryCode))
	}
	add(strings.TrimPrefix(s, "+"))
	if n.CountryCode != "" && !strings.HasPrefix(s, "+") && strings.HasPrefix(s, n.CountryCode) {
		rest := strings.TrimPrefix(s, n.CountryCode)
		if n.NationalLength == 0 || len(rest) == n.NationalLength {
			add(rest)
		}
	}

	if intl, ok := n.international(s); ok {
		add(intl)
		add("+" + intl)
		if national, ok := n.national(intl); ok {
			add(national)
		}
	}

	return out, nil
}

// International returns the "+"-qualified form of raw used to address outbound messages.
func (n *Normalizer) International(raw string) (string, error) {
	s := clean(raw)
	if s == "" {
		return "", ErrInvalidInput
	}
	intl, ok := n.international(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidInput, raw)
	}
	if _, err := phonenumbers.Parse("+"+intl, ""); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidInput, raw, err)
	}
	return "+" + intl, nil
}

// international returns the digits of s including the country code, without the leading "+".
func (n *Normalizer) international(s string) (string, bool) {
	digits := strings.TrimPrefix(s, "+")
	if !isDigits(digits) {
		return "", false
	}
	if strings.HasPrefix(s, "+") {
		return digits, true
	}
	if n.CountryCode != "" && n.NationalLength > 0 && len(digits) == n.NationalLength {
		return n.CountryCode + digits, true
	}
	return digits, true
}

func (n *Normalizer) national(intl string) (string, bool) {
	if n.CountryCode == "" || !strings.HasPrefix(intl, n.CountryCode) {
		return "", false
	}
	rest := strings.TrimPrefix(intl, n.CountryCode)
	if rest == "" || (n.NationalLength > 0 && len(rest) != n.NationalLength) {
		return "", false
	}
	return rest, true
}

// StripChannel removes the chat-channel scheme marker, if any.
func StripChannel(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= len(ChannelPrefix) && strings.EqualFold(s[:len(ChannelPrefix)], ChannelPrefix) {
		return s[len(ChannelPrefix):]
	}
	return s
}

func clean(raw string) string {
	s := StripChannel(raw)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
