package sites

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the technical inspection certificate registry (CITV). The
// captcha image arrives inline as a base64 src attribute, so it can be
// decoded straight off the DOM.
const revisionURL = "https://rec.mtc.gob.pe/Citv/ArConsultaCitv"

const (
	selRevisionPlate      = "#txtPlaca"
	selRevisionCaptchaImg = "#imgCaptcha"
	selRevisionCaptchaIn  = "#texCaptcha, input[name='texCaptcha']"
	selRevisionSubmit     = "input[type='submit'][value='Buscar'], button[type='submit']"
)

const revisionAttempts = 2

func (r *Registry) revisionByPlate(ctx context.Context, plate string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		plate = strings.ToUpper(strings.TrimSpace(plate))

		var body string
		for attempt := 0; attempt < revisionAttempts; attempt++ {
			if err := bc.Navigate(ctx, revisionURL, 20*time.Second); err != nil {
				return result.ServiceResult{}, err
			}
			if err := bc.Fill(ctx, selRevisionPlate, plate); err != nil {
				return result.ServiceResult{}, err
			}

			image, err := r.revisionCaptchaImage(ctx, bc)
			if err != nil {
				return result.ServiceResult{}, err
			}
			answer, err := r.solveTextCaptcha(ctx, image)
			if err != nil {
				return result.ServiceResult{}, err
			}

			if err := bc.Fill(ctx, selRevisionCaptchaIn, answer); err != nil {
				return result.ServiceResult{}, err
			}
			if err := bc.Click(ctx, selRevisionSubmit); err != nil {
				return result.ServiceResult{}, err
			}
			time.Sleep(4 * time.Second)

			body = bc.Text(ctx, "body")
			if !containsAny(body, "captcha incorrecto", "ingresar correctamente el captcha") {
				return result.Success(map[string]any{
					"plate":    plate,
					"valid":    containsAny(body, "vigente"),
					"raw_text": body,
				}), nil
			}
		}

		return result.ServiceResult{}, errors.New(errors.KindChallenge, "revision.lookup", "captcha rejected on every attempt")
	})
}

// revisionCaptchaImage decodes the inline data URL; a screenshot covers
// builds that serve the image from an endpoint instead.
func (r *Registry) revisionCaptchaImage(ctx context.Context, bc *browser.Context) ([]byte, error) {
	if src, err := bc.Attribute(ctx, selRevisionCaptchaImg, "src"); err == nil {
		if png, ok := decodeDataURL(src); ok {
			return png, nil
		}
	}
	return bc.ScreenshotElement(ctx, selRevisionCaptchaImg, 6*time.Second)
}
