// Package names parses and fuzzes person names discovered in upstream
// results so they can feed dependent lookups.
package names

import "strings"

// OwnerRecord is a person name split the way the registries index it.
// It is chaining input only, never authoritative data.
type OwnerRecord struct {
	Surname1   string
	Surname2   string
	GivenNames string
}

func (o OwnerRecord) Empty() bool {
	return o.Surname1 == "" && o.Surname2 == "" && o.GivenNames == ""
}

// ParseOwner splits a raw owner string into surnames and given names.
// Two upstream shapes are handled: "SURNAME1 SURNAME2, GIVEN NAMES" and a
// plain token list with at least three tokens where the first two are
// surnames. Anything else is rejected.
func ParseOwner(raw string) (OwnerRecord, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return OwnerRecord{}, false
	}

	if i := strings.Index(raw, ","); i >= 0 {
		surnames := strings.Fields(raw[:i])
		given := strings.TrimSpace(raw[i+1:])
		if len(surnames) == 0 || given == "" {
			return OwnerRecord{}, false
		}
		rec := OwnerRecord{Surname1: surnames[0], GivenNames: given}
		if len(surnames) > 1 {
			rec.Surname2 = strings.Join(surnames[1:], " ")
		}
		return rec, true
	}

	tokens := strings.Fields(raw)
	if len(tokens) < 3 {
		return OwnerRecord{}, false
	}
	return OwnerRecord{
		Surname1:   tokens[0],
		Surname2:   tokens[1],
		GivenNames: strings.Join(tokens[2:], " "),
	}, true
}
