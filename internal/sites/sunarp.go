package sites

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the vehicle ownership registry (SUNARP). The portal is an
// SPA guarded by a token-and-callback challenge; the result renders as
// an image card, so owner names come out of a vision pass over it.
const sunarpURL = "https://consultavehicular.sunarp.gob.pe/consulta-vehicular/"

const (
	selSunarpPlate      = "#nroPlaca, input[name='nroPlaca'], input[formcontrolname='nroPlaca']"
	selSunarpSearchBtn  = "button.btn-sunarp-green, button[nztype='primary'], button[type='submit']"
	selSunarpResultImg  = ".container-data-vehiculo img"
	selSunarpResultCard = ".card-container, app-vehicular"
)

const (
	sunarpHookWait       = 5 * time.Second
	sunarpSubmitAttempts = 3
	sunarpOutcomeWait    = 12 * time.Second
)

type sunarpOutcome int

const (
	sunarpOutcomeTimeout sunarpOutcome = iota
	sunarpOutcomeResult
	sunarpOutcomeRejected
)

func (r *Registry) sunarpByPlate(ctx context.Context, plate string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := r.turnstile.Install(bc); err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Navigate(ctx, sunarpURL, 20*time.Second); err != nil {
			return result.ServiceResult{}, err
		}
		if _, err := bc.WaitVisible(ctx, selSunarpPlate, 8*time.Second); err != nil {
			return result.ServiceResult{}, err
		}

		plate = strings.ToUpper(strings.TrimSpace(plate))
		if err := bc.Fill(ctx, selSunarpPlate, plate); err != nil {
			return result.ServiceResult{}, err
		}

		// The token expires fast, so it is solved right before each
		// submit rather than once up front.
		outcome := sunarpOutcomeTimeout
		for attempt := 0; attempt < sunarpSubmitAttempts; attempt++ {
			if err := r.turnstile.Solve(ctx, bc, sunarpURL, sunarpHookWait); err != nil {
				r.logger.WarnTag("Sunarp", "turnstile solve attempt %d: %v", attempt+1, err)
				r.sunarpClickCheckbox(ctx, bc, 6*time.Second)
				r.sunarpWaitToken(ctx, bc, 8*time.Second)
			}

			r.sunarpCloseModal(ctx, bc)
			r.sunarpWaitEnabled(ctx, bc, sunarpOutcomeWait)
			if err := bc.Click(ctx, selSunarpSearchBtn); err != nil {
				return result.ServiceResult{}, err
			}

			outcome = r.sunarpWaitOutcome(ctx, bc, sunarpOutcomeWait)
			if outcome == sunarpOutcomeResult {
				break
			}
			r.sunarpCloseModal(ctx, bc)
			time.Sleep(500 * time.Millisecond)
		}

		r.sunarpCloseModal(ctx, bc)
		png, src := r.sunarpResultImage(ctx, bc)
		if len(png) == 0 {
			if outcome == sunarpOutcomeRejected {
				return result.ServiceResult{}, errors.New(errors.KindChallenge, "sunarp.lookup", "challenge rejected on every attempt")
			}
			return result.ServiceResult{}, errors.New(errors.KindUpstream, "sunarp.lookup", "no result card rendered")
		}

		data := map[string]any{
			"plate":     plate,
			"raw_text":  bc.Text(ctx, "body"),
			"image_src": src,
		}

		if r.vision != nil {
			owners, err := r.vision.Owners(ctx, png)
			if err != nil {
				r.logger.WarnTag("Sunarp", "owner extraction: %v", err)
			}
			details := make([]map[string]string, 0, len(owners))
			for _, o := range owners {
				rec, ok := names.ParseOwner(o)
				if !ok {
					continue
				}
				details = append(details, map[string]string{
					"texto":      o,
					"ap_paterno": rec.Surname1,
					"ap_materno": rec.Surname2,
					"nombres":    rec.GivenNames,
				})
			}
			data["owners"] = owners
			data["owner_details"] = details
		}

		return result.Success(data), nil
	})
}

// isTurnstileFrameURL reports whether a frame URL belongs to the
// interactive challenge widget.
func isTurnstileFrameURL(url string) bool {
	return strings.Contains(url, "challenges.cloudflare.com") || strings.Contains(url, "turnstile")
}

// sunarpClickCheckbox is the interactive fallback when the backend
// solve fails: tick the challenge checkbox inside the widget's iframe,
// or a page-level one when the widget rendered without an iframe.
func (r *Registry) sunarpClickCheckbox(ctx context.Context, bc *browser.Context, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}

		if elements, err := bc.Page().Context(ctx).Elements("iframe"); err == nil {
			for _, el := range elements {
				src, err := el.Attribute("src")
				if err != nil || src == nil || !isTurnstileFrameURL(*src) {
					continue
				}
				frame, err := el.Frame()
				if err != nil {
					continue
				}
				box, err := frame.Context(ctx).Timeout(2 * time.Second).Element("input[type='checkbox'], .ctp-checkbox")
				if err != nil {
					continue
				}
				if err := box.Click(proto.InputMouseButtonLeft, 1); err == nil {
					time.Sleep(800 * time.Millisecond)
					return true
				}
			}
		}

		res, err := bc.Eval(ctx, `() => {
			const box = document.querySelector("input[type='checkbox']");
			if (!box) return false;
			box.click();
			return true;
		}`)
		if err == nil && res.Value.Bool() {
			time.Sleep(800 * time.Millisecond)
			return true
		}

		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// sunarpWaitToken is the last-resort path when the backend solve fails:
// the widget sometimes completes interactively on its own, leaving the
// token in the hidden response field.
func (r *Registry) sunarpWaitToken(ctx context.Context, bc *browser.Context, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		res, err := bc.Eval(ctx, `() => {
			const el = document.querySelector("input[name='cf-turnstile-response'], textarea[name='cf-turnstile-response']");
			return el ? el.value : '';
		}`)
		if err == nil && strings.TrimSpace(res.Value.Str()) != "" {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// sunarpCloseModal dismisses the rejection alert and strips leftover
// overlays that would intercept the next click.
func (r *Registry) sunarpCloseModal(ctx context.Context, bc *browser.Context) {
	_, _ = bc.Eval(ctx, `() => {
		for (const btn of document.querySelectorAll('button')) {
			const t = (btn.textContent || '').trim().toUpperCase();
			if (t === 'OK' || t === 'ACEPTAR') { btn.click(); break; }
		}
		for (const sel of ['.swal2-container', '.swal2-backdrop-show']) {
			document.querySelectorAll(sel).forEach(el => el.remove());
		}
	}`)
}

// sunarpWaitEnabled polls the search button out of its disabled and
// loading states.
func (r *Registry) sunarpWaitEnabled(ctx context.Context, bc *browser.Context, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		res, err := bc.Eval(ctx, `(sel) => {
			const btn = document.querySelector(sel);
			if (!btn) return false;
			const cls = btn.className || '';
			return !btn.disabled && !cls.includes('disabled') && !cls.includes('loading');
		}`, selSunarpSearchBtn)
		if err == nil && res.Value.Bool() {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// sunarpWaitOutcome watches the page settle after a submit: either the
// result card paints or the portal rejects the token.
func (r *Registry) sunarpWaitOutcome(ctx context.Context, bc *browser.Context, wait time.Duration) sunarpOutcome {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return sunarpOutcomeTimeout
		}
		res, err := bc.Eval(ctx, `(sel) => {
			if (document.querySelector(sel)) return 'result';
			const text = document.body ? document.body.innerText : '';
			if (text.includes('Captcha no resuelto') || text.includes('Token Captcha Invalido')) return 'rejected';
			return '';
		}`, selSunarpResultImg+", "+selSunarpResultCard)
		if err == nil {
			switch res.Value.Str() {
			case "result":
				return sunarpOutcomeResult
			case "rejected":
				return sunarpOutcomeRejected
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return sunarpOutcomeTimeout
}

// sunarpResultImage returns the result card as PNG bytes plus a data
// URL. Older builds embed the card as a base64 img; newer ones render
// it in the DOM, where a screenshot stands in.
func (r *Registry) sunarpResultImage(ctx context.Context, bc *browser.Context) ([]byte, string) {
	if src, err := bc.Attribute(ctx, selSunarpResultImg, "src"); err == nil && src != "" {
		if png, ok := decodeDataURL(src); ok {
			return png, src
		}
	}
	png, err := bc.ScreenshotElement(ctx, selSunarpResultCard, 4*time.Second)
	if err != nil || len(png) == 0 {
		return nil, ""
	}
	return png, "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// decodeDataURL extracts the raw bytes out of a data:...;base64 URL.
func decodeDataURL(src string) ([]byte, bool) {
	i := strings.Index(src, "base64,")
	if !strings.HasPrefix(src, "data:") || i < 0 {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(src[i+len("base64,"):])
	if err != nil {
		return nil, false
	}
	return raw, true
}
