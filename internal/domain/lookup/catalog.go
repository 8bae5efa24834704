// Package lookup orchestrates the per-portal queries: name
// normalization, the uniform task wrapper, and the dependency-resolving
// aggregator that chains identifiers between lookups.
package lookup

import (
	"sort"
	"strings"

	"consulta-vehicular-go/internal/platform/errors"
)

// Canonical lookup names. Everything a client may request resolves to
// one of these.
const (
	ServiceSunarp      = "sunarp"
	ServiceSoat        = "soat"
	ServiceRevision    = "revision"
	ServiceSutran      = "sutran"
	ServiceSat         = "sat"
	ServiceSatCallao   = "sat_callao"
	ServiceDNINombre   = "dni_nombre"
	ServiceDNIPeru     = "dni_peru"
	ServiceLicencia    = "licencia"
	ServiceRedam       = "redam"
	ServiceRecompensas = "recompensas"
	ServiceSunatRUC    = "sunat_ruc"
)

var canonical = map[string]bool{
	ServiceSunarp:      true,
	ServiceSoat:        true,
	ServiceRevision:    true,
	ServiceSutran:      true,
	ServiceSat:         true,
	ServiceSatCallao:   true,
	ServiceDNINombre:   true,
	ServiceDNIPeru:     true,
	ServiceLicencia:    true,
	ServiceRedam:       true,
	ServiceRecompensas: true,
	ServiceSunatRUC:    true,
}

var aliases = map[string]string{
	"dni":             ServiceDNIPeru,
	"dniperu":         ServiceDNIPeru,
	"dni_nombres":     ServiceDNINombre,
	"dni_propietario": ServiceDNINombre,
	"dni_por_nombre":  ServiceDNINombre,
	"lic":             ServiceLicencia,
	"mtc_licencia":    ServiceLicencia,
	"satcallao":       ServiceSatCallao,
	"ruc":             ServiceSunatRUC,
}

// Normalize lowercases, alias-resolves and deduplicates the requested
// lookup names, preserving first-seen order. Any token that is still
// unknown after alias resolution rejects the whole set.
func Normalize(requested []string) ([]string, error) {
	var out []string
	var unknown []string
	seen := make(map[string]bool)

	for _, raw := range requested {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if target, ok := aliases[name]; ok {
			name = target
		}
		if !canonical[name] {
			if !seen["!"+name] {
				seen["!"+name] = true
				unknown = append(unknown, name)
			}
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}

	if len(unknown) > 0 {
		return nil, errors.New(errors.KindValidation, "lookup.normalize",
			"unknown services: "+strings.Join(unknown, ", "))
	}
	return out, nil
}

// Known reports whether a name is canonical.
func Known(name string) bool {
	return canonical[name]
}

// Catalog returns the canonical names sorted for display.
func Catalog() []string {
	out := make([]string, 0, len(canonical))
	for name := range canonical {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Aliases returns a copy of the alias table.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out
}
