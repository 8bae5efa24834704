package sites

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the name-to-document search on buscardniperu.com. This one
// is a plain form POST against the site's ajax endpoint; the second
// surname is retried across spelling variants because the upstream
// transcription it chains from is often slightly wrong.
const (
	dniNombreURL     = "https://buscardniperu.com/wp-admin/admin-ajax.php"
	dniNombreReferer = "https://buscardniperu.com/buscar-dni-por-nombres/"
)

type dniNombreResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type dniNombreRow struct {
	DNI        string `json:"dni"`
	Surname1   string `json:"ap_pat"`
	Surname2   string `json:"ap_mat"`
	GivenNames string `json:"nombres"`
	BirthDate  string `json:"fecha_nac"`
	Address    string `json:"direccion"`
	Sex        string `json:"sexo"`
	CivilState string `json:"est_civil"`
}

func (r *Registry) dniNombreByOwner(ctx context.Context, owner names.OwnerRecord) (result.ServiceResult, error) {
	surname1 := strings.ToUpper(strings.TrimSpace(owner.Surname1))
	surname2 := strings.ToUpper(strings.TrimSpace(owner.Surname2))
	given := strings.ToUpper(strings.TrimSpace(owner.GivenNames))
	if surname1 == "" || surname2 == "" || given == "" {
		return result.ServiceResult{}, errors.New(errors.KindValidation, "dni_nombre.lookup", "surnames and given names required")
	}

	var (
		rows        []dniNombreRow
		surnameUsed = surname2
		attempts    []map[string]any
	)
	for _, variant := range names.SurnameVariants(surname2) {
		found, err := r.dniNombrePost(ctx, surname1, variant, given)
		if err != nil {
			r.logger.DebugTag("DniNombre", "variant %s: %v", variant, err)
			continue
		}
		attempts = append(attempts, map[string]any{"surname2": variant, "total": len(found)})
		if len(found) > 0 {
			rows = found
			surnameUsed = variant
			break
		}
	}

	results := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		results = append(results, map[string]string{
			"dni":         strings.TrimSpace(row.DNI),
			"ap_paterno":  row.Surname1,
			"ap_materno":  row.Surname2,
			"nombres":     row.GivenNames,
			"fecha_nac":   row.BirthDate,
			"direccion":   row.Address,
			"sexo":        row.Sex,
			"estado_civil": row.CivilState,
		})
	}

	data := map[string]any{
		"query": map[string]string{
			"ap_paterno":       surname1,
			"ap_materno":       surname2,
			"ap_materno_usado": surnameUsed,
			"nombres":          given,
		},
		"total":    len(results),
		"results":  results,
		"attempts": attempts,
	}
	if len(results) > 0 {
		data["dni"] = results[0]["dni"]
	}
	return result.Success(data), nil
}

func (r *Registry) dniNombrePost(ctx context.Context, surname1, surname2, given string) ([]dniNombreRow, error) {
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Origin", "https://buscardniperu.com").
		SetHeader("Referer", dniNombreReferer).
		SetFormData(map[string]string{
			"ap_pat":  surname1,
			"ap_mat":  surname2,
			"nombres": given,
			"pagina":  strconv.Itoa(1),
			"action":  "consulta_dni_api",
			"tipo":    "nombre",
		}).
		Post(dniNombreURL)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, "dni_nombre.post", "search request", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, errors.New(errors.KindUpstream, "dni_nombre.post", "search returned HTTP "+strconv.Itoa(resp.StatusCode()))
	}

	var payload dniNombreResponse
	if err := sonic.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, errors.Wrap(errors.KindUpstream, "dni_nombre.post", "non-JSON response", err)
	}
	if !payload.Success {
		return nil, errors.New(errors.KindUpstream, "dni_nombre.post", "search unsuccessful")
	}

	var rows []dniNombreRow
	if err := sonic.Unmarshal(payload.Data, &rows); err != nil {
		// success with a non-list payload means no rows.
		return nil, nil
	}
	return rows, nil
}
