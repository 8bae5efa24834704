package turnstile

import "testing"

func TestSiteKeyPatterns(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "config object form",
			body: `var cfg = { captchaCloudflare: "0x4AAAAAAABkMYinukE8nzKd" };`,
			want: "0x4AAAAAAABkMYinukE8nzKd",
		},
		{
			name: "render options form",
			body: `turnstile.render(el, { sitekey: '0x4AAAAAAADnPIDROrmt1Wwj' });`,
			want: "0x4AAAAAAADnPIDROrmt1Wwj",
		},
		{
			name: "no key",
			body: `console.log("nothing here");`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ""
			for _, pat := range siteKeyPatterns {
				if m := pat.FindStringSubmatch(tt.body); m != nil {
					got = m[1]
					break
				}
			}
			if got != tt.want {
				t.Errorf("extracted %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestFrameKeyPattern(t *testing.T) {
	src := "https://challenges.cloudflare.com/cdn-cgi/challenge-platform/h/b/turnstile/if/ov2/av0/rcv0/0x4AAAAAAABkMYinukE8nz/dark/normal"
	m := frameKeyPattern.FindStringSubmatch(src)
	if m == nil || m[1] != "0x4AAAAAAABkMYinukE8nz" {
		t.Errorf("frame pattern failed: %v", m)
	}
}

func TestOriginOf(t *testing.T) {
	if got := originOf("https://www.sunarp.gob.pe/consulta/inicio?x=1"); got != "https://www.sunarp.gob.pe" {
		t.Errorf("originOf = %q", got)
	}
}
