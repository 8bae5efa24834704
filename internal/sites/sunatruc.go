package sites

import (
	"context"
	"html"
	"regexp"
	"strconv"
	"strings"

	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the tax registry (SUNAT). No browser involved: a warmup
// GET for cookies, then a form POST, then regex extraction over the
// server-rendered HTML. An 11-digit document searches by RUC directly;
// an 8-digit one searches by the holder's identity document.
const (
	sunatBaseURL   = "https://e-consultaruc.sunat.gob.pe/cl-ti-itmrconsruc/"
	sunatSearchURL = sunatBaseURL + "FrameCriterioBusquedaWeb.jsp"
	sunatPostURL   = sunatBaseURL + "jcrS00Alias"
)

var (
	sunatItemPattern   = regexp.MustCompile(`(?is)<a\b[^>]*data-ruc=['"](\d{11})['"][^>]*>(.*?)</a>`)
	sunatH4Pattern     = regexp.MustCompile(`(?is)<h4\b[^>]*>(.*?)</h4>`)
	sunatStatePattern  = regexp.MustCompile(`(?is)Estado\s*:\s*(?:<strong>)?(?:<span[^>]*>)?(.*?)(?:</span>)?(?:</strong>)?\s*</p>`)
	sunatPlacePattern  = regexp.MustCompile(`(?is)Ubicaci(?:&oacute;|ó|o)n\s*:\s*(.*?)</p>`)
	sunatRucLine       = regexp.MustCompile(`(?i)RUC\s*[:\-]?\s*(\d{11})`)
	sunatTagPattern    = regexp.MustCompile(`<[^>]+>`)
	sunatSpacePattern  = regexp.MustCompile(`\s+`)
	sunatDigitsPattern = regexp.MustCompile(`^\d+$`)
)

func (r *Registry) sunatRUCByDocument(ctx context.Context, document string) (result.ServiceResult, error) {
	document = strings.TrimSpace(document)
	if !sunatDigitsPattern.MatchString(document) {
		return result.ServiceResult{}, errors.New(errors.KindValidation, "sunat_ruc.lookup", "document must be numeric")
	}

	form := map[string]string{
		"accion":   "consPorTipdoc",
		"razSoc":   "",
		"search3":  "",
		"nroRuc":   "",
		"search1":  "",
		"nrodoc":   document,
		"search2":  document,
		"tipdoc":   "1",
		"token":    "",
		"contexto": "ti-it",
		"modo":     "1",
		"codigo":   "",
	}
	if len(document) == 11 {
		form["accion"] = "consPorRuc"
		form["nroRuc"] = document
		form["search1"] = document
		form["nrodoc"] = ""
		form["search2"] = ""
	}

	warmup, err := r.http.R().SetContext(ctx).Get(sunatSearchURL)
	if err != nil {
		return result.ServiceResult{}, errors.Wrap(errors.KindUpstream, "sunat_ruc.lookup", "warmup request", err)
	}
	if warmup.StatusCode() >= 400 {
		return result.ServiceResult{}, errors.New(errors.KindUpstream, "sunat_ruc.lookup", "warmup returned HTTP "+strconv.Itoa(warmup.StatusCode()))
	}

	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Referer", sunatSearchURL).
		SetFormData(form).
		Post(sunatPostURL)
	if err != nil {
		return result.ServiceResult{}, errors.Wrap(errors.KindUpstream, "sunat_ruc.lookup", "search request", err)
	}
	if resp.StatusCode() >= 400 {
		return result.ServiceResult{}, errors.New(errors.KindUpstream, "sunat_ruc.lookup", "search returned HTTP "+strconv.Itoa(resp.StatusCode()))
	}

	page := string(resp.Body())
	entries := parseSunatResults(page)

	return result.Success(map[string]any{
		"document":   document,
		"total":      len(entries),
		"no_results": len(entries) == 0,
		"results":    entries,
		"raw_text":   sunatHTMLToText(page),
	}), nil
}

// parseSunatResults pulls the RUC result cards out of the listing HTML.
func parseSunatResults(page string) []map[string]string {
	var out []map[string]string
	seen := make(map[string]bool)
	for _, m := range sunatItemPattern.FindAllStringSubmatch(page, -1) {
		ruc, block := m[1], m[2]
		if seen[ruc] {
			continue
		}
		seen[ruc] = true

		name := ""
		for _, h4 := range sunatH4Pattern.FindAllStringSubmatch(block, -1) {
			text := sunatHTMLToText(h4[1])
			if text == "" || sunatRucLine.MatchString(text) || sunatDigitsPattern.MatchString(text) {
				continue
			}
			name = text
			break
		}

		out = append(out, map[string]string{
			"ruc":          ruc,
			"razon_social": name,
			"estado":       firstSubmatchText(sunatStatePattern, block),
			"ubicacion":    firstSubmatchText(sunatPlacePattern, block),
		})
	}
	return out
}

func firstSubmatchText(pat *regexp.Regexp, s string) string {
	m := pat.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return sunatHTMLToText(m[1])
}

func sunatHTMLToText(s string) string {
	text := sunatTagPattern.ReplaceAllString(s, " ")
	text = strings.ReplaceAll(html.UnescapeString(text), "\u00a0", " ")
	return strings.TrimSpace(sunatSpacePattern.ReplaceAllString(text, " "))
}
