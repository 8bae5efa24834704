package sites

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/result"
)

// Driver for the insurance certificate registry (SBS). No challenge on
// this portal; a plain form submit.
const soatURL = "https://servicios.sbs.gob.pe/reportesoat/"

const (
	selSoatPlate  = "#ctl00_MainBodyContent_txtPlaca, input[name='ctl00$MainBodyContent$txtPlaca']"
	selSoatSubmit = "input[type='submit'][value='Consultar'], #ctl00_MainBodyContent_btnConsultar"
)

func (r *Registry) soatByPlate(ctx context.Context, plate string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := bc.Navigate(ctx, soatURL, 20*time.Second); err != nil {
			return result.ServiceResult{}, err
		}

		plate = strings.TrimSpace(plate)
		if err := bc.Fill(ctx, selSoatPlate, plate); err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Click(ctx, selSoatSubmit); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(4 * time.Second)

		body := bc.Text(ctx, "body")
		noInfo := containsAny(body, "no tiene información reportada sobre soat", "no tiene informacion reportada sobre soat")

		return result.Success(map[string]any{
			"plate":      plate,
			"registered": !noInfo,
			"raw_text":   body,
		}), nil
	})
}
