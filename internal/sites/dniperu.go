package sites

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the name-to-document search on dniperu.com. The result
// arrives as a plain "label: value" block inside a textarea.
const dniPeruURL = "https://dniperu.com/buscar-dni-nombres-apellidos/"

const (
	selDniPeruSurname1 = "#apellido_paterno, input[name='apellido_paterno'], input[placeholder*='Paterno']"
	selDniPeruSurname2 = "#apellido_materno, input[name='apellido_materno'], input[placeholder*='Materno']"
	selDniPeruGiven    = "#nombres, input[name='nombres'], input[placeholder*='Nombres']"
	selDniPeruSubmit   = "#buscar-nombres-button, #buscar-dni-button, button[type='submit']"
	selDniPeruResult   = "#resultado-nombres, #resultado_dni, textarea"
)

func (r *Registry) dniPeruByOwner(ctx context.Context, owner names.OwnerRecord) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := bc.Navigate(ctx, dniPeruURL, 20*time.Second); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(time.Second)

		if err := bc.Fill(ctx, selDniPeruSurname1, strings.ToUpper(owner.Surname1)); err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Fill(ctx, selDniPeruSurname2, strings.ToUpper(owner.Surname2)); err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Fill(ctx, selDniPeruGiven, strings.ToUpper(owner.GivenNames)); err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Click(ctx, selDniPeruSubmit); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(3 * time.Second)

		raw := r.dniPeruReadResult(ctx, bc)
		if raw == "" {
			return result.ServiceResult{}, errors.New(errors.KindUpstream, "dni_peru.lookup", "result block not found")
		}

		parsed := parseDniPeruBlock(raw)
		data := map[string]any{
			"raw_text": raw,
			"fields":   parsed,
		}
		if dni := parsed["dni"]; dni != "" {
			data["dni"] = dni
		}
		return result.Success(data), nil
	})
}

// dniPeruReadResult polls the result textarea; the page fills it in
// asynchronously after the search button fires.
func (r *Registry) dniPeruReadResult(ctx context.Context, bc *browser.Context) string {
	deadline := time.Now().Add(6 * time.Second)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ""
		}
		res, err := bc.Eval(ctx, `(sel) => {
			const el = document.querySelector(sel);
			return el ? (el.value || el.innerText || el.textContent || '').trim() : '';
		}`, selDniPeruResult)
		if err == nil {
			if text := strings.TrimSpace(res.Value.Str()); text != "" {
				return text
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return ""
}

// parseDniPeruBlock splits "label: value" lines into canonical fields.
func parseDniPeruBlock(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		i := strings.Index(line, ":")
		if i < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:i]))
		val := strings.TrimSpace(line[i+1:])
		if val == "" {
			continue
		}
		switch {
		case strings.Contains(key, "dni"):
			out["dni"] = val
		case strings.Contains(key, "paterno"):
			out["ap_paterno"] = val
		case strings.Contains(key, "materno"):
			out["ap_materno"] = val
		case strings.Contains(key, "nombres"):
			out["nombres"] = val
		case strings.Contains(key, "verificacion"), strings.Contains(key, "verificación"):
			out["codigo_verificacion"] = val
		}
	}
	return out
}
