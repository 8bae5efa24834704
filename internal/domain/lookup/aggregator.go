package lookup

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/logging"
)

// Dispatcher is the surface the per-portal drivers expose to the
// aggregator. Which method applies to which lookup is the aggregator's
// knowledge; the drivers only know their own portal.
type Dispatcher interface {
	ByPlate(ctx context.Context, name, plate string) (result.ServiceResult, error)
	ByOwner(ctx context.Context, name string, owner names.OwnerRecord) (result.ServiceResult, error)
	ByDocument(ctx context.Context, name, document string) (result.ServiceResult, error)
}

// Request is one aggregate query.
type Request struct {
	Identifier     string   `json:"identifier"`
	DocumentNumber string   `json:"document_number"`
	Services       []string `json:"services"`
}

// Response is the aggregate envelope. OK is true whenever dispatch
// began; per-lookup failures live inside Services.
type Response struct {
	OK             bool                            `json:"ok"`
	Identifier     string                          `json:"identifier"`
	DocumentNumber string                          `json:"document_number,omitempty"`
	Services       map[string]result.ServiceResult `json:"services"`
	RequestedOrder []string                        `json:"requested_order"`
}

// independents are the plate- or request-driven lookups with no
// upstream dependency. Everything else chains off their results.
var independents = map[string]bool{
	ServiceSunarp:    true,
	ServiceSoat:      true,
	ServiceRevision:  true,
	ServiceSutran:    true,
	ServiceSat:       true,
	ServiceSatCallao: true,
	ServiceSunatRUC:  true,
}

// dependentOrder fixes the execution order of the chained stage; later
// entries may consume identifiers produced by earlier ones.
var dependentOrder = []string{
	ServiceDNIPeru,
	ServiceDNINombre,
	ServiceRecompensas,
	ServiceLicencia,
	ServiceRedam,
}

// Aggregator resolves lookup dependencies and drives every query
// through the task wrapper.
type Aggregator struct {
	dispatcher Dispatcher
	cfg        *config.Config
	logger     *logging.Logger
}

func NewAggregator(dispatcher Dispatcher, cfg *config.Config, logger *logging.Logger) *Aggregator {
	return &Aggregator{dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Execute validates the request, runs the independent lookups
// concurrently, joins them, then walks the dependent stage feeding each
// lookup from the fixed-priority extractor chains. One lookup's failure
// never touches its siblings.
func (a *Aggregator) Execute(ctx context.Context, req Request) (*Response, error) {
	requested, err := Normalize(req.Services)
	if err != nil {
		return nil, err
	}

	a.logger.InfoTag("Lookup", "dispatch identifier=%s services=%v", req.Identifier, requested)

	resp := &Response{
		OK:             true,
		Identifier:     strings.ToUpper(strings.TrimSpace(req.Identifier)),
		Services:       make(map[string]result.ServiceResult, len(requested)),
		RequestedOrder: requested,
	}

	var indep, dep []string
	for _, name := range requested {
		if independents[name] {
			indep = append(indep, name)
		} else {
			dep = append(dep, name)
		}
	}

	// Independent stage: all concurrent, barrier join before any
	// extraction happens.
	results := make(map[string]result.ServiceResult, len(indep))
	var mu sync.Mutex
	var g errgroup.Group
	for _, name := range indep {
		name := name
		g.Go(func() error {
			res := Run(ctx, name, a.timeout(name), a.independentOp(name, resp.Identifier, req.DocumentNumber))
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	for name, res := range results {
		resp.Services[name] = res
	}

	// Dependent stage, fixed order.
	for _, name := range dependentOrder {
		if !contains(dep, name) {
			continue
		}
		resp.Services[name] = a.runDependent(ctx, name, req, resp.Services)
	}

	resp.DocumentNumber = firstDocument(req, resp.Services)
	return resp, nil
}

func (a *Aggregator) timeout(name string) time.Duration {
	return time.Duration(a.cfg.LookupTimeoutMs(name)) * time.Millisecond
}

func (a *Aggregator) independentOp(name, plate, document string) Operation {
	if name == ServiceSunatRUC {
		return func(ctx context.Context) (result.ServiceResult, error) {
			if document == "" {
				return result.Failure(http.StatusBadRequest, "document number required for sunat_ruc"), nil
			}
			return a.dispatcher.ByDocument(ctx, name, document)
		}
	}
	return func(ctx context.Context) (result.ServiceResult, error) {
		return a.dispatcher.ByPlate(ctx, name, plate)
	}
}

// runDependent resolves the lookup's input through its extractor chain
// and either dispatches it or synthesizes the 400 result the chain's
// exhaustion demands.
func (a *Aggregator) runDependent(ctx context.Context, name string, req Request, done map[string]result.ServiceResult) result.ServiceResult {
	switch name {
	case ServiceDNIPeru, ServiceDNINombre, ServiceRecompensas:
		owner, ok := ownerFromSunarp(done)
		if !ok {
			return result.Failure(http.StatusBadRequest, "owner name required for "+name)
		}
		return Run(ctx, name, a.timeout(name), func(ctx context.Context) (result.ServiceResult, error) {
			return a.dispatcher.ByOwner(ctx, name, owner)
		})

	case ServiceLicencia:
		// Priority: explicit request, then name-to-document lookups.
		document := firstNonEmpty(
			req.DocumentNumber,
			documentFrom(done, ServiceDNIPeru),
			documentFrom(done, ServiceDNINombre),
		)
		if document != "" {
			return Run(ctx, name, a.timeout(name), func(ctx context.Context) (result.ServiceResult, error) {
				return a.dispatcher.ByDocument(ctx, name, document)
			})
		}
		if owner, ok := ownerFromSunarp(done); ok {
			res := Run(ctx, name, a.timeout(name), func(ctx context.Context) (result.ServiceResult, error) {
				return a.dispatcher.ByOwner(ctx, name, owner)
			})
			return res.WithExtra("owner_used", owner.Surname1+" "+owner.Surname2+" "+owner.GivenNames)
		}
		return result.Failure(http.StatusBadRequest, "document number required for licencia")

	case ServiceRedam:
		document := firstNonEmpty(
			req.DocumentNumber,
			documentFrom(done, ServiceLicencia),
			documentFrom(done, ServiceDNIPeru),
			documentFrom(done, ServiceDNINombre),
		)
		if document == "" {
			return result.Failure(http.StatusBadRequest, "document number required for redam")
		}
		return Run(ctx, name, a.timeout(name), func(ctx context.Context) (result.ServiceResult, error) {
			return a.dispatcher.ByDocument(ctx, name, document)
		})
	}

	return result.Failure(http.StatusInternalServerError, "no dispatch rule for "+name)
}

// ownerFromSunarp pulls the parsed owner record out of a completed
// sunarp result.
func ownerFromSunarp(done map[string]result.ServiceResult) (names.OwnerRecord, bool) {
	res, ok := done[ServiceSunarp]
	if !ok || !res.OK {
		return names.OwnerRecord{}, false
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		return names.OwnerRecord{}, false
	}

	if owners, ok := data["owners"].([]string); ok && len(owners) > 0 {
		if rec, parsed := names.ParseOwner(owners[0]); parsed {
			return rec, true
		}
	}
	if raw, ok := data["owner"].(string); ok {
		if rec, parsed := names.ParseOwner(raw); parsed {
			return rec, true
		}
	}
	return names.OwnerRecord{}, false
}

// documentFrom extracts the discovered document number from a completed
// lookup, empty when the lookup failed or carried none.
func documentFrom(done map[string]result.ServiceResult, name string) string {
	res, ok := done[name]
	if !ok || !res.OK {
		return ""
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		return ""
	}
	if dni, ok := data["dni"].(string); ok {
		return strings.TrimSpace(dni)
	}
	return ""
}

func firstDocument(req Request, done map[string]result.ServiceResult) string {
	return firstNonEmpty(
		req.DocumentNumber,
		documentFrom(done, ServiceDNIPeru),
		documentFrom(done, ServiceDNINombre),
		documentFrom(done, ServiceLicencia),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
