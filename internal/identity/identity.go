// Package identity canonicalizes phone numbers and e-mail addresses so that
// records held in stores without a shared key can be joined.
//
// Matching policy: two identities match when their normalized phones are
// equal OR their normalized e-mails are equal. The OR is deliberate, it
// tolerates records where only one of the two was captured. When a phone
// lookup and an e-mail lookup point at different records, the phone match
// wins (see Best).
package identity

import (
	"strings"
)

// Normalizer holds the numbering-plan defaults used to turn national phone
// formats into international form.
type Normalizer struct {
	CountryCode    string // without "+", e.g. "44"
	TrunkPrefix    string // national trunk prefix, e.g. "0"
	NationalLength int    // digits after the trunk prefix
	MinDigits      int
}

var defaultNormalizer = Normalizer{
	CountryCode:    "44",
	TrunkPrefix:    "0",
	NationalLength: 10,
	MinDigits:      7,
}

// SetDefault replaces the package-wide normalizer. Call it once at startup.
func SetDefault(n Normalizer) {
	if n.TrunkPrefix == "" {
		n.TrunkPrefix = "0"
	}
	if n.MinDigits == 0 {
		n.MinDigits = 7
	}
	defaultNormalizer = n
}

func Default() Normalizer { return defaultNormalizer }

// Phone returns the canonical form of raw, or "" when raw carries no usable
// number. "" is the no-identity sentinel and never matches.
func (n Normalizer) Phone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	plus := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < n.MinDigits {
		return ""
	}

	switch {
	case plus:
		return "+" + digits
	case strings.HasPrefix(digits, "00"):
		return "+" + digits[2:]
	case strings.HasPrefix(digits, n.TrunkPrefix) && len(digits)-len(n.TrunkPrefix) == n.NationalLength:
		return "+" + n.CountryCode + digits[len(n.TrunkPrefix):]
	case len(digits) == n.NationalLength:
		return "+" + n.CountryCode + digits
	case strings.HasPrefix(digits, n.CountryCode) && len(digits) == len(n.CountryCode)+n.NationalLength:
		return "+" + digits
	case len(digits) > n.NationalLength:
		return "+" + digits
	}
	return digits
}

// Email lower-cases and trims raw. Anything that does not look like
// local@domain yields "".
func (n Normalizer) Email(raw string) string {
	e := strings.ToLower(strings.TrimSpace(raw))
	at := strings.IndexByte(e, '@')
	if at <= 0 || at != strings.LastIndexByte(e, '@') || at == len(e)-1 {
		return ""
	}
	if strings.ContainsAny(e, " \t\n") {
		return ""
	}
	return e
}

func (n Normalizer) Identity(phone, email string) Identity {
	return Identity{Phone: n.Phone(phone), Email: n.Email(email)}
}

func NormalizePhone(raw string) string { return defaultNormalizer.Phone(raw) }

func NormalizeEmail(raw string) string { return defaultNormalizer.Email(raw) }

// New builds an Identity with the default normalizer.
func New(phone, email string) Identity {
	return defaultNormalizer.Identity(phone, email)
}

// Identity is the normalized (phone, email) pair of a record. It is a value
// type: compare identities with Matches, never with ==.
type Identity struct {
	Phone string
	Email string
}

// IsZero reports whether neither key is usable.
func (id Identity) IsZero() bool {
	return id.Phone == "" && id.Email == ""
}

// MatchKind says which key joined two identities.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchEmail
	MatchPhone
)

func (k MatchKind) String() string {
	switch k {
	case MatchPhone:
		return "phone"
	case MatchEmail:
		return "email"
	}
	return "none"
}

// Compare reports how id matches other. Phone equality outranks e-mail.
func (id Identity) Compare(other Identity) MatchKind {
	if id.Phone != "" && id.Phone == other.Phone {
		return MatchPhone
	}
	if id.Email != "" && id.Email == other.Email {
		return MatchEmail
	}
	return MatchNone
}

func (id Identity) Matches(other Identity) bool {
	return id.Compare(other) != MatchNone
}

// PhoneDigits returns the phone without the leading "+".
func (id Identity) PhoneDigits() string {
	return strings.TrimPrefix(id.Phone, "+")
}

// DocumentID is the deterministic document-store key for the identity, or
// "" when there is no phone.
func (id Identity) DocumentID() string {
	if id.Phone == "" {
		return ""
	}
	return "lead_" + id.PhoneDigits()
}

func (id Identity) String() string {
	switch {
	case id.Phone != "" && id.Email != "":
		return id.Phone + "/" + id.Email
	case id.Phone != "":
		return id.Phone
	case id.Email != "":
		return id.Email
	}
	return "<none>"
}

// Best returns the first item whose identity matches id by phone, falling
// back to the first e-mail match. ok is false when nothing matches.
func Best[T any](id Identity, items []T, key func(T) Identity) (best T, kind MatchKind, ok bool) {
	emailIdx := -1
	for i, item := range items {
		switch id.Compare(key(item)) {
		case MatchPhone:
			return item, MatchPhone, true
		case MatchEmail:
			if emailIdx < 0 {
				emailIdx = i
			}
		}
	}
	if emailIdx >= 0 {
		return items[emailIdx], MatchEmail, true
	}
	return best, MatchNone, false
}
