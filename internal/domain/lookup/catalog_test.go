package lookup

import (
	"reflect"
	"strings"
	"testing"

	"consulta-vehicular-go/internal/platform/errors"
)

func TestNormalizeAliasesAndDedup(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "aliases resolve",
			in:   []string{"dni", "lic", "dni_nombres"},
			want: []string{"dni_peru", "licencia", "dni_nombre"},
		},
		{
			name: "dedup preserves first-seen order",
			in:   []string{"soat", "dni", "dniperu", "soat", "SOAT"},
			want: []string{"soat", "dni_peru"},
		},
		{
			name: "whitespace and case",
			in:   []string{"  Sunarp ", "MTC_LICENCIA"},
			want: []string{"sunarp", "licencia"},
		},
		{
			name: "empty tokens skipped",
			in:   []string{"", "  ", "redam"},
			want: []string{"redam"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%v) = %v, expected %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := []string{"dni", "lic", "sunarp"}
	once, err := Normalize(in)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalization not idempotent: %v != %v", once, twice)
	}
}

func TestNormalizeRejectsUnknownListingTokens(t *testing.T) {
	_, err := Normalize([]string{"soat", "bogus", "sunarp", "nadie"})
	if err == nil {
		t.Fatal("expected error for unknown tokens")
	}
	if !errors.IsKind(err, errors.KindValidation) {
		t.Errorf("expected validation kind, got %v", err)
	}
	msg := errors.PublicMessage(err)
	for _, tok := range []string{"bogus", "nadie"} {
		if !strings.Contains(msg, tok) {
			t.Errorf("message %q should list invalid token %q", msg, tok)
		}
	}
	if strings.Contains(msg, "soat") || strings.Contains(msg, "sunarp") {
		t.Errorf("message %q should list only the invalid tokens", msg)
	}
}
