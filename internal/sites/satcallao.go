package sites

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the Callao traffic ticket query.
const satCallaoURL = "https://pagopapeletascallao.pe/buscar"

const (
	selCallaoSearchType = "#tipo_busqueda"
	selCallaoPlate      = "#valor_busqueda"
	selCallaoCaptchaImg = "img[src*='captcha'], img[src^='data:image']"
	selCallaoCaptchaIn  = "#captcha"
	selCallaoSubmit     = "#idBuscar"
)

func (r *Registry) satCallaoByPlate(ctx context.Context, plate string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := bc.Navigate(ctx, satCallaoURL, 20*time.Second); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(time.Second)

		// Search type 1 = plate number.
		_, _ = bc.Eval(ctx, `(sel) => {
			const dd = document.querySelector(sel);
			if (dd) {
				dd.value = '1';
				dd.dispatchEvent(new Event('change', { bubbles: true }));
			}
		}`, selCallaoSearchType)

		plate = strings.ToUpper(strings.TrimSpace(plate))
		if err := bc.Fill(ctx, selCallaoPlate, plate); err != nil {
			return result.ServiceResult{}, err
		}

		png, err := r.satCallaoCaptchaImage(ctx, bc)
		if err != nil {
			return result.ServiceResult{}, err
		}
		answer, err := r.solveTextCaptcha(ctx, png)
		if err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Fill(ctx, selCallaoCaptchaIn, answer); err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Click(ctx, selCallaoSubmit); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(3500 * time.Millisecond)

		body := bc.Text(ctx, "body")
		if containsAny(body, "captcha incorrecto", "código incorrecto", "codigo incorrecto") {
			return result.ServiceResult{}, errors.New(errors.KindChallenge, "sat_callao.lookup", "captcha rejected")
		}

		return result.Success(map[string]any{
			"plate":    plate,
			"raw_text": body,
		}), nil
	})
}

func (r *Registry) satCallaoCaptchaImage(ctx context.Context, bc *browser.Context) ([]byte, error) {
	if src, err := bc.Attribute(ctx, selCallaoCaptchaImg, "src"); err == nil {
		if png, ok := decodeDataURL(src); ok {
			return png, nil
		}
	}
	return bc.ScreenshotElement(ctx, selCallaoCaptchaImg, 6*time.Second)
}
