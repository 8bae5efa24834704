package sites

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the traffic infraction record (SUTRAN). The form lives in
// one iframe and the captcha image in a second one, so this driver
// works on raw frames instead of the top document.
const sutranURL = "https://www.sutran.gob.pe/consultas/record-de-infracciones/record-de-infracciones/"

func (r *Registry) sutranByPlate(ctx context.Context, plate string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := bc.Navigate(ctx, sutranURL, 25*time.Second); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(1500 * time.Millisecond)

		form, err := frameBySrc(ctx, bc, "frmRecordInfracciones", 10*time.Second)
		if err != nil {
			return result.ServiceResult{}, err
		}

		plate = strings.ToUpper(strings.TrimSpace(plate))
		if err := frameFill(ctx, form, "#txtPlaca", plate); err != nil {
			return result.ServiceResult{}, err
		}

		captchaFrame, err := frameBySrc(ctx, bc, "Captcha.aspx", 6*time.Second)
		if err != nil {
			return result.ServiceResult{}, err
		}
		img, err := captchaFrame.Context(ctx).Timeout(6 * time.Second).Element("img")
		if err != nil {
			return result.ServiceResult{}, errors.Wrap(errors.KindUpstream, "sutran.lookup", "captcha image", err)
		}
		png, err := img.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return result.ServiceResult{}, errors.Wrap(errors.KindUpstream, "sutran.lookup", "captcha screenshot", err)
		}

		answer, err := r.solveTextCaptcha(ctx, png)
		if err != nil {
			return result.ServiceResult{}, err
		}
		if err := frameFill(ctx, form, "#TxtCodImagen", answer); err != nil {
			return result.ServiceResult{}, err
		}

		btn, err := form.Context(ctx).Element("#BtnBuscar, input[type='submit'][value*='Buscar']")
		if err != nil {
			return result.ServiceResult{}, errors.Wrap(errors.KindUpstream, "sutran.lookup", "search button", err)
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return result.ServiceResult{}, errors.Wrap(errors.KindUpstream, "sutran.lookup", "click search", err)
		}
		time.Sleep(4 * time.Second)

		body := frameText(ctx, form, "body")
		if body == "" {
			body = bc.Text(ctx, "body")
		}
		if containsAny(body, "código ingresado es incorrecto", "codigo ingresado es incorrecto") {
			return result.ServiceResult{}, errors.New(errors.KindChallenge, "sutran.lookup", "captcha rejected")
		}

		return result.Success(map[string]any{
			"plate":    plate,
			"raw_text": body,
		}), nil
	})
}

// frameBySrc resolves the child frame whose URL contains the marker.
func frameBySrc(ctx context.Context, bc *browser.Context, marker string, wait time.Duration) (*rod.Page, error) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		elements, err := bc.Page().Context(ctx).Elements("iframe")
		if err == nil {
			for _, el := range elements {
				src, err := el.Attribute("src")
				if err != nil || src == nil || !strings.Contains(*src, marker) {
					continue
				}
				frame, err := el.Frame()
				if err == nil {
					return frame, nil
				}
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return nil, errors.New(errors.KindUpstream, "sutran.frame", "frame not found: "+marker)
}

func frameFill(ctx context.Context, frame *rod.Page, selector, text string) error {
	el, err := frame.Context(ctx).Timeout(6 * time.Second).Element(selector)
	if err != nil {
		return errors.Wrap(errors.KindUpstream, "sutran.frame", "element "+selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return errors.Wrap(errors.KindUpstream, "sutran.frame", "input into "+selector, err)
	}
	return nil
}

func frameText(ctx context.Context, frame *rod.Page, selector string) string {
	el, err := frame.Context(ctx).Timeout(2 * time.Second).Element(selector)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}
