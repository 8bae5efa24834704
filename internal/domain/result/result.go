// Package result defines the uniform envelope every lookup resolves to,
// whatever happened upstream.
package result

// ServiceResult is the outcome of one named lookup. OK is true only when
// the call completed and the portal actually accepted the query; transport
// failures, timeouts and unresolved challenges all land here as OK=false
// with a status and message instead of propagating as errors.
type ServiceResult struct {
	OK         bool           `json:"ok"`
	Data       any            `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	HTTPStatus int            `json:"http_status,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func Success(data any) ServiceResult {
	return ServiceResult{OK: true, Data: data}
}

func Failure(status int, message string) ServiceResult {
	return ServiceResult{OK: false, HTTPStatus: status, Error: message}
}

// WithExtra attaches a supplementary field, allocating the map lazily.
func (r ServiceResult) WithExtra(key string, value any) ServiceResult {
	if r.Extra == nil {
		r.Extra = make(map[string]any, 1)
	}
	r.Extra[key] = value
	return r
}
