package sites

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the judiciary's delinquent-maintenance debtor registry
// (REDAM), searched by document number.
const redamURL = "https://casillas.pj.gob.pe/redam/#/"

const (
	selRedamDocInput   = "#numerodocumento, input[ng-model*='numerodocumento']"
	selRedamCaptchaImg = "img[src*='Captcha']"
	selRedamCaptchaIn  = "#captcha, input[ng-model*='captcha']"
)

func (r *Registry) redamByDocument(ctx context.Context, document string) (result.ServiceResult, error) {
	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := bc.Navigate(ctx, redamURL, 20*time.Second); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(time.Second)
		r.redamSelectDocumentTab(ctx, bc)

		document = strings.TrimSpace(document)
		if err := bc.Fill(ctx, selRedamDocInput, document); err != nil {
			return result.ServiceResult{}, err
		}

		png, err := bc.ScreenshotElement(ctx, selRedamCaptchaImg, 6*time.Second)
		if err != nil {
			return result.ServiceResult{}, err
		}
		answer, err := r.solveTextCaptcha(ctx, png)
		if err != nil {
			return result.ServiceResult{}, err
		}
		if err := bc.Fill(ctx, selRedamCaptchaIn, answer); err != nil {
			return result.ServiceResult{}, err
		}

		if err := r.redamClickSearch(ctx, bc); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(4 * time.Second)

		body := bc.Text(ctx, "body")
		if containsAny(body, "captcha incorrecto", "código no coincide", "código ingresado no es correcto") {
			return result.ServiceResult{}, errors.New(errors.KindChallenge, "redam.lookup", "captcha rejected")
		}

		records := r.redamParseTable(ctx, bc)
		empty := containsAny(body, "no presentan registros")

		return result.Success(map[string]any{
			"document":   document,
			"registered": !empty && len(records) > 0,
			"records":    records,
			"raw_text":   body,
		}), nil
	})
}

// redamSelectDocumentTab switches the SPA to document search and pins
// the document type to DNI.
func (r *Registry) redamSelectDocumentTab(ctx context.Context, bc *browser.Context) {
	_, _ = bc.Eval(ctx, `() => {
		for (const a of document.querySelectorAll('a')) {
			if ((a.textContent || '').toUpperCase().includes('DOCUMENTO DE IDENTIDAD')) { a.click(); break; }
		}
		const dd = document.querySelector("select[ng-model*='tipoDocumento'], select[name*='tipoDocumento']");
		if (dd) {
			for (const opt of dd.options) {
				if ((opt.textContent || '').trim() === 'DNI') { dd.value = opt.value; break; }
			}
			dd.dispatchEvent(new Event('change', { bubbles: true }));
		}
	}`)
	time.Sleep(500 * time.Millisecond)
}

func (r *Registry) redamClickSearch(ctx context.Context, bc *browser.Context) error {
	res, err := bc.Eval(ctx, `() => {
		for (const btn of document.querySelectorAll('button')) {
			if ((btn.textContent || '').toUpperCase().includes('CONSULTAR')) { btn.click(); return true; }
		}
		return false;
	}`)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return errors.New(errors.KindUpstream, "redam.lookup", "search button not found")
	}
	return nil
}

// redamParseTable flattens the result table into header-keyed rows.
func (r *Registry) redamParseTable(ctx context.Context, bc *browser.Context) []map[string]string {
	res, err := bc.Eval(ctx, `() => {
		const tbl = document.querySelector('table.ng-table, table');
		if (!tbl) return null;
		return Array.from(tbl.querySelectorAll('tr')).map(tr =>
			Array.from(tr.children).map(td => (td.innerText || '').trim()));
	}`)
	if err != nil || res.Value.Val() == nil {
		return nil
	}

	rows := res.Value.Arr()
	if len(rows) < 2 {
		return nil
	}

	headers := rows[0].Arr()
	var out []map[string]string
	for _, row := range rows[1:] {
		cells := row.Arr()
		entry := make(map[string]string)
		for i, h := range headers {
			name := strings.TrimSpace(h.Str())
			if name == "" || i >= len(cells) {
				continue
			}
			entry[name] = cells[i].Str()
		}
		if len(entry) > 0 {
			out = append(out, entry)
		}
	}
	return out
}
