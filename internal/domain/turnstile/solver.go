// Package turnstile defeats the client-side token-and-callback
// challenge: capture the widget parameters from the live page, buy a
// solved token from the backend, and hand it back to the page.
package turnstile

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
	"consulta-vehicular-go/internal/providers/capmonster"
)

// hookScript wraps the widget's render call before page scripts run so
// the sitekey, action, cdata and callback are captured even when the
// page never exposes them in the DOM.
const hookScript = `(() => {
	if (window.__ts_hooked) return;
	window.__ts_hooked = true;
	window.__ts_params = null;
	window.__ts_callback = null;
	const install = () => {
		const t = window.turnstile;
		if (!t || t.__hooked) return false;
		const orig = t.render;
		if (typeof orig !== 'function') return false;
		t.__hooked = true;
		t.render = function (el, opts) {
			try {
				window.__ts_params = {
					sitekey: (opts && opts.sitekey) || '',
					action: (opts && opts.action) || '',
					cdata: (opts && opts.cData) || '',
					hasCallback: !!(opts && opts.callback)
				};
				window.__ts_callback = (opts && opts.callback) || null;
			} catch (e) {}
			return orig.apply(this, arguments);
		};
		return true;
	};
	if (!install()) {
		const timer = setInterval(() => { if (install()) clearInterval(timer); }, 50);
		setTimeout(() => clearInterval(timer), 15000);
	}
})();`

const applyScript = `(token) => {
	try { if (window.__ts_callback) window.__ts_callback(token); } catch (e) {}
	const names = ['cf-turnstile-response', 'cf_turnstile_response', 'g-recaptcha-response'];
	for (const n of names) {
		const sel = 'input[name="' + n + '"], textarea[name="' + n + '"]';
		for (const el of document.querySelectorAll(sel)) {
			el.value = token;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
	}
	const disabled = document.querySelectorAll('button[disabled], input[type="submit"][disabled]');
	for (const btn of disabled) btn.removeAttribute('disabled');
	return true;
}`

var siteKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`captchaCloudflare\s*[:=]\s*["'](0x[0-9A-Za-z_-]{8,})["']`),
	regexp.MustCompile(`sitekey\s*[:=]\s*["'](0x[0-9A-Za-z_-]{8,})["']`),
}

var frameKeyPattern = regexp.MustCompile(`/(0x[0-9A-Za-z]{8,})/`)

const maxAssetScans = 12

// Params is what the solver managed to learn about the widget.
type Params struct {
	SiteKey     string
	Action      string
	Data        string
	HasCallback bool
}

// Solver captures widget parameters and applies solved tokens.
type Solver struct {
	tokens *capmonster.TokenSolver
	http   *resty.Client
	logger *logging.Logger

	mu       sync.Mutex
	keyCache map[string]string
}

func NewSolver(tokens *capmonster.TokenSolver, logger *logging.Logger) *Solver {
	return &Solver{
		tokens:   tokens,
		http:     resty.New().SetTimeout(8 * time.Second),
		logger:   logger,
		keyCache: make(map[string]string),
	}
}

// Install registers the render hook on a context. Must run before the
// page carrying the widget is navigated to.
func (s *Solver) Install(bc *browser.Context) error {
	return bc.InstallHook(hookScript)
}

// WaitParams polls the hook capture until it fires or the wait expires.
// A missing capture is not an error; the extraction fallbacks cover it.
func (s *Solver) WaitParams(ctx context.Context, bc *browser.Context, wait time.Duration) (Params, bool) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return Params{}, false
		}
		res, err := bc.Eval(ctx, `() => window.__ts_params`)
		if err == nil && res.Value.Val() != nil {
			v := res.Value
			p := Params{
				SiteKey:     v.Get("sitekey").Str(),
				Action:      v.Get("action").Str(),
				Data:        v.Get("cdata").Str(),
				HasCallback: v.Get("hasCallback").Bool(),
			}
			if p.SiteKey != "" {
				return p, true
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	return Params{}, false
}

// ExtractParams recovers the sitekey when the hook missed the render:
// widget element attribute, inline scripts, the challenge frame URL,
// and finally a bounded scan of same-origin script assets.
func (s *Solver) ExtractParams(ctx context.Context, bc *browser.Context, pageURL string) (Params, error) {
	if key, ok := s.cachedKey(pageURL); ok {
		return Params{SiteKey: key}, nil
	}

	if key, err := bc.Attribute(ctx, "[data-sitekey]", "data-sitekey"); err == nil && key != "" {
		s.cacheKey(pageURL, key)
		return Params{SiteKey: key}, nil
	}

	if html, err := bc.HTML(ctx); err == nil {
		for _, pat := range siteKeyPatterns {
			if m := pat.FindStringSubmatch(html); m != nil {
				s.cacheKey(pageURL, m[1])
				return Params{SiteKey: m[1]}, nil
			}
		}
	}

	if key := s.keyFromFrames(ctx, bc); key != "" {
		s.cacheKey(pageURL, key)
		return Params{SiteKey: key}, nil
	}

	if key := s.keyFromAssets(ctx, bc, pageURL); key != "" {
		s.cacheKey(pageURL, key)
		return Params{SiteKey: key}, nil
	}

	return Params{}, errors.New(errors.KindChallenge, "turnstile.extract", "sitekey not found on page")
}

// keyFromFrames looks for the challenge iframe whose URL embeds the key.
func (s *Solver) keyFromFrames(ctx context.Context, bc *browser.Context) string {
	res, err := bc.Eval(ctx, `() => Array.from(document.querySelectorAll('iframe')).map(f => f.src).filter(Boolean)`)
	if err != nil {
		return ""
	}
	for _, v := range res.Value.Arr() {
		src := v.Str()
		if !strings.Contains(src, "challenges.cloudflare.com") {
			continue
		}
		if m := frameKeyPattern.FindStringSubmatch(src); m != nil {
			return m[1]
		}
	}
	return ""
}

// keyFromAssets fetches same-origin script bundles and greps them for
// the key pattern, bounded to the first dozen assets.
func (s *Solver) keyFromAssets(ctx context.Context, bc *browser.Context, pageURL string) string {
	origin, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	res, err := bc.Eval(ctx, `() => Array.from(document.scripts).map(s => s.src).filter(Boolean)`)
	if err != nil {
		return ""
	}

	scanned := 0
	for _, v := range res.Value.Arr() {
		src := v.Str()
		assetURL, err := url.Parse(src)
		if err != nil || assetURL.Host != origin.Host {
			continue
		}
		if scanned >= maxAssetScans {
			break
		}
		scanned++

		resp, err := s.http.R().SetContext(ctx).Get(src)
		if err != nil {
			continue
		}
		body := string(resp.Body())
		for _, pat := range siteKeyPatterns {
			if m := pat.FindStringSubmatch(body); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// Solve runs the full capture-solve-apply sequence on a page that has
// already navigated to the protected form. hookWait bounds how long the
// render hook is given before the fallbacks kick in.
func (s *Solver) Solve(ctx context.Context, bc *browser.Context, pageURL string, hookWait time.Duration) error {
	params, captured := s.WaitParams(ctx, bc, hookWait)
	if !captured {
		extracted, err := s.ExtractParams(ctx, bc, pageURL)
		if err != nil {
			return err
		}
		params = extracted
	}

	token, err := s.tokens.Solve(ctx, capmonster.TurnstileRequest{
		PageURL:   pageURL,
		SiteKey:   params.SiteKey,
		Action:    params.Action,
		Data:      params.Data,
		UserAgent: bc.UserAgent(),
	})
	if err != nil {
		return err
	}

	if err := s.Apply(ctx, bc, token); err != nil {
		return err
	}

	// Give the page a beat to react to the callback before submission.
	time.Sleep(500 * time.Millisecond)
	return nil
}

// Apply feeds the token to the captured callback and, as a backstop,
// writes it into the hidden response fields and re-enables submission.
func (s *Solver) Apply(ctx context.Context, bc *browser.Context, token string) error {
	_, err := bc.Eval(ctx, applyScript, token)
	if err != nil {
		return errors.Wrap(errors.KindChallenge, "turnstile.apply", "apply token to page", err)
	}
	return nil
}

func (s *Solver) cachedKey(pageURL string) (string, bool) {
	origin := originOf(pageURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keyCache[origin]
	return key, ok
}

func (s *Solver) cacheKey(pageURL, key string) {
	origin := originOf(pageURL)
	s.mu.Lock()
	s.keyCache[origin] = key
	s.mu.Unlock()
}

func originOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	return u.Scheme + "://" + u.Host
}
