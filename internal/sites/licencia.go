package sites

import (
	"context"
	"net/http"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/captcha"
	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/domain/session"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver licence-points portal (MTC). Search runs either by document
// number or by full name, both gated behind a 6-digit image captcha.
const licenciaURL = "https://slcp.mtc.gob.pe/"

const (
	selLicenciaRadioDocumento = "#rbtnlBuqueda_0"
	selLicenciaRadioNombres   = "#rbtnlBuqueda_2"
	selLicenciaTipoDocumento  = "#ddlTipoDocumento"
	selLicenciaNroDocumento   = "#txtNroDocumento"
	selLicenciaApePaterno     = "#txtApePaterno"
	selLicenciaApeMaterno     = "#txtApeMaterno"
	selLicenciaNombre         = "#txtNombre"
	selLicenciaCaptchaImg     = "#imgCaptcha"
	selLicenciaCaptchaInput   = "#txtCaptcha"
	selLicenciaCaptchaRefresh = "#btnCaptcha"
	selLicenciaBuscar         = "#ibtnBusqNroDoc"
	selLicenciaAdministrado   = "#lblAdministrado"
	selLicenciaModal          = "#ModalMensaje"
)

// licenciaSummaryFields maps result labels to their DOM selectors.
var licenciaSummaryFields = map[string]string{
	"administrado":    "#lblAdministrado",
	"dni":             "#lblDni",
	"licencia":        "#lblLicencia",
	"clase_categoria": "#lblClaseCategoria",
	"vigente_hasta":   "#lblVigencia",
	"estado_licencia": "#lblEstadoLicencia",
	"muy_graves":      "#lblMuyGraves",
	"graves":          "#lblGraves",
	"puntos_firmes":   "#lblPtsAcumulados",
}

var licenciaSignals = Signals{
	Positive: []string{"CONSULTA DEL ADMINISTRADO"},
	Empty:    []string{"NO REGISTRA INFORMACI", "NO SE ENCONTR"},
}

// licenciaByDocument runs the automatic solve loop for a document query.
func (r *Registry) licenciaByDocument(ctx context.Context, document string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := r.licenciaPrepare(ctx, bc, document, nil); err != nil {
			return result.ServiceResult{}, err
		}
		return r.licenciaAutoSolve(ctx, bc)
	})
}

// licenciaByOwner is the fallback path when no document is known: the
// owner's surnames and given names drive the search instead.
func (r *Registry) licenciaByOwner(ctx context.Context, owner names.OwnerRecord) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := r.licenciaPrepare(ctx, bc, "", &owner); err != nil {
			return result.ServiceResult{}, err
		}
		return r.licenciaAutoSolve(ctx, bc)
	})
}

func (r *Registry) licenciaAutoSolve(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
	image, err := r.licenciaCaptchaImage(ctx, bc)
	if err != nil {
		return result.ServiceResult{}, err
	}

	var parsed map[string]any
	_, verdict, err := r.engine.SolveAndSubmit(ctx, image,
		r.cfg.Captcha.MaxCandidates, r.cfg.Captcha.AutoAttempts,
		captcha.SubmitHooks{
			Submit: func(ctx context.Context, answer string) (string, error) {
				return r.licenciaSubmit(ctx, bc, answer)
			},
			Classify: func(raw string) captcha.Verdict {
				v := Classify(raw, licenciaSignals)
				if v == captcha.VerdictAccepted {
					parsed = r.licenciaParseSummary(ctx, bc)
				}
				return v
			},
			Refresh: func(ctx context.Context) ([]byte, error) {
				return r.licenciaRefreshCaptcha(ctx, bc)
			},
		})
	if err != nil {
		return result.ServiceResult{}, err
	}

	if verdict == captcha.VerdictAcceptedEmpty {
		return result.Success(map[string]any{"registered": false}).
			WithExtra("empty", true), nil
	}
	return result.Success(toAnyMap(parsed)), nil
}

// licenciaPrepare loads the portal and fills the search form. Exactly
// one of document or owner drives the query.
func (r *Registry) licenciaPrepare(ctx context.Context, bc *browser.Context, document string, owner *names.OwnerRecord) error {
	if err := bc.Navigate(ctx, licenciaURL, 20*time.Second); err != nil {
		return err
	}
	r.licenciaCloseModal(ctx, bc)

	if owner != nil {
		if err := bc.Click(ctx, selLicenciaRadioNombres); err != nil {
			return err
		}
		time.Sleep(400 * time.Millisecond)
		if err := bc.Fill(ctx, selLicenciaApePaterno, strings.ToUpper(owner.Surname1)); err != nil {
			return err
		}
		if err := bc.Fill(ctx, selLicenciaApeMaterno, strings.ToUpper(owner.Surname2)); err != nil {
			return err
		}
		return bc.Fill(ctx, selLicenciaNombre, strings.ToUpper(owner.GivenNames))
	}

	if err := bc.Click(ctx, selLicenciaRadioDocumento); err != nil {
		return err
	}
	time.Sleep(400 * time.Millisecond)

	// Document type DNI triggers a postback when changed.
	_, _ = bc.Eval(ctx, `(sel) => {
		const dd = document.querySelector(sel);
		if (dd && dd.value !== '2') {
			dd.value = '2';
			dd.dispatchEvent(new Event('change', { bubbles: true }));
		}
	}`, selLicenciaTipoDocumento)
	time.Sleep(400 * time.Millisecond)

	return bc.Fill(ctx, selLicenciaNroDocumento, strings.TrimSpace(document))
}

// licenciaCloseModal dismisses the informational modal that blocks
// clicks when present.
func (r *Registry) licenciaCloseModal(ctx context.Context, bc *browser.Context) {
	_, _ = bc.Eval(ctx, `(sel) => {
		const m = document.querySelector(sel);
		if (!m) return false;
		const btn = m.querySelector("button[data-dismiss='modal'], .btn-default");
		if (btn) btn.click();
		m.classList.remove('show', 'in');
		m.style.display = 'none';
		return true;
	}`, selLicenciaModal)
}

// licenciaCaptchaImage captures the exact captcha the browser already
// rendered; refetching the URL would desync it from the session.
func (r *Registry) licenciaCaptchaImage(ctx context.Context, bc *browser.Context) ([]byte, error) {
	return bc.ScreenshotElement(ctx, selLicenciaCaptchaImg, 6*time.Second)
}

func (r *Registry) licenciaRefreshCaptcha(ctx context.Context, bc *browser.Context) ([]byte, error) {
	if err := bc.Click(ctx, selLicenciaCaptchaRefresh); err != nil {
		return nil, err
	}
	time.Sleep(600 * time.Millisecond)
	return r.licenciaCaptchaImage(ctx, bc)
}

// licenciaSubmit posts one answer and returns the page text the
// classifier works on, modal message included.
func (r *Registry) licenciaSubmit(ctx context.Context, bc *browser.Context, answer string) (string, error) {
	if err := bc.Fill(ctx, selLicenciaCaptchaInput, answer); err != nil {
		return "", err
	}
	r.licenciaCloseModal(ctx, bc)
	if err := bc.Click(ctx, selLicenciaBuscar); err != nil {
		return "", err
	}

	_, _ = bc.WaitVisible(ctx, selLicenciaAdministrado+", "+selLicenciaModal+".show, "+selLicenciaModal+".in", 6*time.Second)

	body := bc.Text(ctx, "body")
	modal := bc.Text(ctx, selLicenciaModal)
	return body + "\n" + modal, nil
}

// licenciaParseSummary reads the result labels into a map; blank labels
// are dropped.
func (r *Registry) licenciaParseSummary(ctx context.Context, bc *browser.Context) map[string]any {
	out := make(map[string]any)
	for field, sel := range licenciaSummaryFields {
		if text := strings.TrimSpace(bc.Text(ctx, sel)); text != "" {
			out[field] = text
		}
	}
	// dni must be a plain string for downstream chaining.
	if v, ok := out["dni"].(string); ok {
		out["dni"] = strings.TrimSpace(v)
	}
	return out
}

func toAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// licenciaFlow is the manual-session side: a prepared live page waiting
// for a human-provided answer.
type licenciaFlow struct {
	reg    *Registry
	bc     *browser.Context
	parsed map[string]any
	empty  bool
}

func (f *licenciaFlow) Submit(ctx context.Context, answer string) (string, captcha.Verdict, error) {
	raw, err := f.reg.licenciaSubmit(ctx, f.bc, answer)
	if err != nil {
		return "", captcha.VerdictRejected, err
	}
	verdict := Classify(raw, licenciaSignals)
	if verdict == captcha.VerdictAccepted {
		f.parsed = f.reg.licenciaParseSummary(ctx, f.bc)
	}
	f.empty = verdict == captcha.VerdictAcceptedEmpty
	return raw, verdict, nil
}

func (f *licenciaFlow) RefreshImage(ctx context.Context) ([]byte, error) {
	return f.reg.licenciaRefreshCaptcha(ctx, f.bc)
}

func (f *licenciaFlow) Parse(raw string, verdict captcha.Verdict) any {
	if f.empty {
		return map[string]any{"registered": false}
	}
	return toAnyMap(f.parsed)
}

func (f *licenciaFlow) Close() {
	f.reg.pool.Drop(f.bc)
}

// OpenLicenciaSession prepares a live page for a manual solve and
// returns the first challenge image plus the flow the session registry
// will drive. On error every acquired resource is released here.
func (r *Registry) OpenLicenciaSession(ctx context.Context, document string, owner *names.OwnerRecord) ([]byte, session.Flow, map[string]string, error) {
	if document == "" && owner == nil {
		return nil, nil, nil, errors.New(errors.KindValidation, "licencia.session", "document number or owner name required").
			WithStatus(http.StatusBadRequest)
	}

	bc, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := r.licenciaPrepare(ctx, bc, document, owner); err != nil {
		r.pool.Drop(bc)
		return nil, nil, nil, err
	}
	image, err := r.licenciaCaptchaImage(ctx, bc)
	if err != nil {
		r.pool.Drop(bc)
		return nil, nil, nil, err
	}

	params := map[string]string{}
	kindParams := "dni"
	if owner != nil {
		kindParams = "nombre"
		params["ap_paterno"] = owner.Surname1
		params["ap_materno"] = owner.Surname2
		params["nombre"] = owner.GivenNames
	} else {
		params["dni"] = strings.TrimSpace(document)
	}
	params["tipo"] = kindParams

	return image, &licenciaFlow{reg: r, bc: bc}, params, nil
}
