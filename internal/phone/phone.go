// internal/phone/phone.go
//
// Formkit – Phone subsystem: number normalization.
//
// Context
//   Phone inputs are free text.  The Normalizer parses them with libphonenumber
//   rules (nyaruka/phonenumbers) against a default region so national
//   formats like "(555) 123-4567" resolve, then formats valid numbers as
//   E.164.  It satisfies form.PhoneNormalizer.
//
// Notes
//   •  Number returns "" for unparseable input; the collector then keeps the
//      raw text and Valid(raw) reports false.
//   •  Close is a no-op kept for the capability contract; results of Parse
//      are not cached.
//
//------------------------------------------------------------------------------

package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "US"

// Normalizer parses numbers for one default region.
type Normalizer struct {
	region string
}

// New returns a Normalizer for region (ISO 3166-1 alpha-2).  An empty region
// falls back to DefaultRegion.
func New(region string) *Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return &Normalizer{region: region}
}

// Region returns the default region.
func (n *Normalizer) Region() string { return n.region }

// Number returns the E.164 form of raw, or "" when raw cannot be parsed or
// is not a valid number.
func (n *Normalizer) Number(raw string) string {
	num, ok := n.parse(raw)
	if !ok {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// Valid reports whether raw is a valid number in the default region (or in
// the region implied by a leading "+").
func (n *Normalizer) Valid(raw string) bool {
	_, ok := n.parse(raw)
	return ok
}

// Close implements form.PhoneNormalizer.
func (n *Normalizer) Close() error { return nil }

func (n *Normalizer) parse(raw string) (*phonenumbers.PhoneNumber, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	num, err := phonenumbers.Parse(raw, n.region)
	if err != nil {
		return nil, false
	}
	return num, phonenumbers.IsValidNumber(num)
}
