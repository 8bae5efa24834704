package sites

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/result"
)

// Driver for the Lima traffic authority's vehicle seizure query (SAT).
const satURL = "https://www.sat.gob.pe/VirtualSAT/modulos/Capturas.aspx?tri=C"

const (
	selSatPlate      = "#ctl00_cplPrincipal_txtPlaca, input[name='ctl00$cplPrincipal$txtPlaca']"
	selSatCaptchaImg = "img[id*='imgCaptcha'], img.captcha_class, img[src*='JpegImage_VB']"
	selSatCaptchaIn  = "#ctl00_cplPrincipal_txtCaptcha"
	selSatSubmit     = "#ctl00_cplPrincipal_CaptchaContinue, input[type='submit'][value='Buscar']"
)

func (r *Registry) satByPlate(ctx context.Context, plate string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := bc.Navigate(ctx, satURL, 20*time.Second); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(time.Second)

		plate = strings.ToUpper(strings.TrimSpace(plate))
		if err := bc.Fill(ctx, selSatPlate, plate); err != nil {
			return result.ServiceResult{}, err
		}

		png, err := bc.ScreenshotElement(ctx, selSatCaptchaImg, 6*time.Second)
		if err != nil {
			return result.ServiceResult{}, err
		}
		answer, err := r.solveTextCaptcha(ctx, png)
		if err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Fill(ctx, selSatCaptchaIn, answer); err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Click(ctx, selSatSubmit); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(3 * time.Second)

		return result.Success(map[string]any{
			"plate":    plate,
			"raw_text": bc.Text(ctx, "body"),
		}), nil
	})
}
