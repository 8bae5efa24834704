package sites

import "testing"

func TestIsTurnstileFrameURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://challenges.cloudflare.com/cdn-cgi/challenge-platform/turnstile/if/ov2/av0/", true},
		{"https://challenges.cloudflare.com/turnstile/v0/api.js", true},
		{"https://cdn.example.com/widgets/turnstile-frame.html", true},
		{"https://consultavehicular.sunarp.gob.pe/consulta-vehicular/", false},
		{"about:blank", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTurnstileFrameURL(tt.url); got != tt.want {
			t.Errorf("isTurnstileFrameURL(%q) = %v, expected %v", tt.url, got, tt.want)
		}
	}
}
