package names

import "strings"

const maxVariants = 10

// SurnameVariants generates alternate spellings for a surname whose
// upstream transcription is often wrong (double letters collapsed, I/L
// confusion, a character dropped or doubled). The first element is always
// the unmodified input; the caller stops at the first variant that yields
// a non-empty result. At most 10 variants are returned.
func SurnameVariants(surname string) []string {
	surname = strings.ToUpper(strings.TrimSpace(surname))
	if surname == "" {
		return nil
	}

	variants := []string{surname}
	seen := map[string]bool{surname: true}
	add := func(v string) {
		if len(variants) >= maxVariants || v == "" || seen[v] {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}

	// Letter-pair confusions common in OCR transcriptions.
	for _, sub := range [][2]string{
		{"LL", "L"},
		{"L", "LL"},
		{"I", "L"},
		{"L", "I"},
	} {
		for i := 0; i+len(sub[0]) <= len(surname); i++ {
			if surname[i:i+len(sub[0])] == sub[0] {
				add(surname[:i] + sub[1] + surname[i+len(sub[0]):])
			}
		}
	}

	// Single-character deletions.
	for i := 0; i < len(surname) && len(variants) < maxVariants; i++ {
		add(surname[:i] + surname[i+1:])
	}

	// Single-character doublings (the insertion case that actually occurs).
	for i := 0; i < len(surname) && len(variants) < maxVariants; i++ {
		add(surname[:i+1] + surname[i:])
	}

	return variants
}
