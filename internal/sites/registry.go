// Package sites holds the per-portal drivers: the navigation, challenge
// handling and result parsing specific to each external registry. The
// aggregator talks to this package only through the dispatcher surface.
package sites

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/captcha"
	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/domain/turnstile"
	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
	"consulta-vehicular-go/internal/providers/vision"
)

// Registry wires every portal driver to the shared infrastructure and
// implements the aggregator's dispatcher surface.
type Registry struct {
	cfg       *config.Config
	logger    *logging.Logger
	pool      *browser.Pool
	engine    *captcha.Engine
	solver    captcha.Solver
	turnstile *turnstile.Solver
	vision    *vision.Extractor
	http      *resty.Client
}

// NewRegistry wires the drivers. engine votes on the fixed-length
// numeric captchas; solver is the raw one-shot backend for portals
// whose captcha alphabet is free-form.
func NewRegistry(
	cfg *config.Config,
	logger *logging.Logger,
	pool *browser.Pool,
	engine *captcha.Engine,
	solver captcha.Solver,
	ts *turnstile.Solver,
	visionExtractor *vision.Extractor,
) *Registry {
	return &Registry{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		engine:    engine,
		solver:    solver,
		turnstile: ts,
		vision:    visionExtractor,
		http: resty.New().
			SetTimeout(15 * time.Second).
			SetHeader("User-Agent", cfg.Browser.UserAgent),
	}
}

// ByPlate dispatches the plate-driven lookups.
func (r *Registry) ByPlate(ctx context.Context, name, plate string) (result.ServiceResult, error) {
	switch name {
	case "sunarp":
		return r.sunarpByPlate(ctx, plate)
	case "soat":
		return r.soatByPlate(ctx, plate)
	case "revision":
		return r.revisionByPlate(ctx, plate)
	case "sutran":
		return r.sutranByPlate(ctx, plate)
	case "sat":
		return r.satByPlate(ctx, plate)
	case "sat_callao":
		return r.satCallaoByPlate(ctx, plate)
	}
	return result.ServiceResult{}, errors.New(errors.KindInternal, "sites.dispatch", "no plate driver for "+name)
}

// ByOwner dispatches the name-driven lookups.
func (r *Registry) ByOwner(ctx context.Context, name string, owner names.OwnerRecord) (result.ServiceResult, error) {
	switch name {
	case "dni_peru":
		return r.dniPeruByOwner(ctx, owner)
	case "dni_nombre":
		return r.dniNombreByOwner(ctx, owner)
	case "recompensas":
		return r.recompensasByOwner(ctx, owner)
	case "licencia":
		return r.licenciaByOwner(ctx, owner)
	}
	return result.ServiceResult{}, errors.New(errors.KindInternal, "sites.dispatch", "no owner driver for "+name)
}

// ByDocument dispatches the document-driven lookups.
func (r *Registry) ByDocument(ctx context.Context, name, document string) (result.ServiceResult, error) {
	switch name {
	case "licencia":
		return r.licenciaByDocument(ctx, document)
	case "redam":
		return r.redamByDocument(ctx, document)
	case "sunat_ruc":
		return r.sunatRUCByDocument(ctx, document)
	}
	return result.ServiceResult{}, errors.New(errors.KindInternal, "sites.dispatch", "no document driver for "+name)
}

// withContext runs a flow on a pooled browsing context, releasing it on
// every path. Release resets the page; contexts that cannot reset are
// destroyed by the pool.
func (r *Registry) withContext(ctx context.Context, fn func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error)) (result.ServiceResult, error) {
	bc, err := r.pool.Acquire(ctx)
	if err != nil {
		return result.ServiceResult{}, err
	}
	defer r.pool.Release(context.WithoutCancel(ctx), bc)
	return fn(ctx, bc)
}
