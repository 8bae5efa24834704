package names

import "testing"

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want OwnerRecord
		ok   bool
	}{
		{
			name: "comma form",
			raw:  "QUISPE MAMANI, JUAN CARLOS",
			want: OwnerRecord{Surname1: "QUISPE", Surname2: "MAMANI", GivenNames: "JUAN CARLOS"},
			ok:   true,
		},
		{
			name: "comma form single surname",
			raw:  "QUISPE, MARIA",
			want: OwnerRecord{Surname1: "QUISPE", GivenNames: "MARIA"},
			ok:   true,
		},
		{
			name: "token form",
			raw:  "FLORES HUAMAN PEDRO PABLO",
			want: OwnerRecord{Surname1: "FLORES", Surname2: "HUAMAN", GivenNames: "PEDRO PABLO"},
			ok:   true,
		},
		{name: "too few tokens", raw: "FLORES PEDRO", ok: false},
		{name: "empty", raw: "   ", ok: false},
		{name: "comma without given names", raw: "QUISPE,", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOwner(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ParseOwner(%q) ok = %v, expected %v", tt.raw, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParseOwner(%q) = %+v, expected %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSurnameVariantsFirstIsInput(t *testing.T) {
	vs := SurnameVariants("villanueva")
	if len(vs) == 0 {
		t.Fatal("expected variants")
	}
	if vs[0] != "VILLANUEVA" {
		t.Errorf("first variant = %q, expected uppercased input", vs[0])
	}
}

func TestSurnameVariantsBounded(t *testing.T) {
	vs := SurnameVariants("VILLALOBOS")
	if len(vs) > 10 {
		t.Errorf("got %d variants, limit is 10", len(vs))
	}
	seen := map[string]bool{}
	for _, v := range vs {
		if seen[v] {
			t.Errorf("duplicate variant %q", v)
		}
		seen[v] = true
	}
}

func TestSurnameVariantsSubstitutions(t *testing.T) {
	vs := SurnameVariants("VILLA")
	want := map[string]bool{"VILA": false, "VILLLA": false}
	for _, v := range vs {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for v, found := range want {
		if !found {
			t.Errorf("expected variant %q in %v", v, vs)
		}
	}
}

func TestSurnameVariantsEmpty(t *testing.T) {
	if vs := SurnameVariants("  "); vs != nil {
		t.Errorf("expected nil for blank input, got %v", vs)
	}
}
