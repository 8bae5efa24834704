package lookup

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logger
}

// fakeDispatcher scripts per-service results and records calls.
type fakeDispatcher struct {
	mu      sync.Mutex
	plate   map[string]result.ServiceResult
	owner   map[string]result.ServiceResult
	doc     map[string]result.ServiceResult
	calls   []string
	docArgs map[string]string
	delays  map[string]time.Duration
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		plate:   map[string]result.ServiceResult{},
		owner:   map[string]result.ServiceResult{},
		doc:     map[string]result.ServiceResult{},
		docArgs: map[string]string{},
		delays:  map[string]time.Duration{},
	}
}

func (f *fakeDispatcher) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeDispatcher) wait(ctx context.Context, name string) error {
	d := f.delays[name]
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeDispatcher) ByPlate(ctx context.Context, name, plate string) (result.ServiceResult, error) {
	f.record(name)
	if err := f.wait(ctx, name); err != nil {
		return result.ServiceResult{}, err
	}
	return f.plate[name], nil
}

func (f *fakeDispatcher) ByOwner(ctx context.Context, name string, owner names.OwnerRecord) (result.ServiceResult, error) {
	f.record(name)
	return f.owner[name], nil
}

func (f *fakeDispatcher) ByDocument(ctx context.Context, name, document string) (result.ServiceResult, error) {
	f.record(name)
	f.mu.Lock()
	f.docArgs[name] = document
	f.mu.Unlock()
	return f.doc[name], nil
}

func newTestAggregator(t *testing.T, d Dispatcher) *Aggregator {
	t.Helper()
	return NewAggregator(d, config.Default(), testLogger(t))
}

func TestExecuteRejectsUnknownServiceBeforeDispatch(t *testing.T) {
	d := newFakeDispatcher()
	a := newTestAggregator(t, d)

	_, err := a.Execute(context.Background(), Request{Identifier: "ABC-123", Services: []string{"soat", "bogus"}})
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(d.calls) != 0 {
		t.Errorf("no lookup should run on validation failure, got calls %v", d.calls)
	}
}

func TestExecuteIndependentConcurrentAndIsolated(t *testing.T) {
	d := newFakeDispatcher()
	d.plate["soat"] = result.Success(map[string]any{"policy": "ok"})
	d.plate["sutran"] = result.Failure(http.StatusBadGateway, "portal down")
	d.plate["sat"] = result.Success(map[string]any{"debts": 0})
	a := newTestAggregator(t, d)

	resp, err := a.Execute(context.Background(), Request{
		Identifier: "abc-123",
		Services:   []string{"soat", "sutran", "sat"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !resp.OK {
		t.Error("envelope must be ok once dispatch begins")
	}
	if resp.Identifier != "ABC-123" {
		t.Errorf("identifier not normalized: %q", resp.Identifier)
	}
	if !resp.Services["soat"].OK || !resp.Services["sat"].OK {
		t.Error("sibling failure leaked into healthy lookups")
	}
	if resp.Services["sutran"].OK {
		t.Error("failed lookup should stay failed")
	}
	if len(resp.RequestedOrder) != 3 {
		t.Errorf("requested order lost: %v", resp.RequestedOrder)
	}
}

func TestExecuteRedamWithoutAnyDocumentSource(t *testing.T) {
	// The scenario from the aggregate contract: redam alone, no explicit
	// document, no lookup requested that could supply one.
	d := newFakeDispatcher()
	a := newTestAggregator(t, d)

	resp, err := a.Execute(context.Background(), Request{
		Identifier: "ABC-123",
		Services:   []string{"redam"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	res := resp.Services["redam"]
	if res.OK {
		t.Fatal("expected synthesized failure")
	}
	if res.HTTPStatus != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400", res.HTTPStatus)
	}
	if res.Error != "document number required for redam" {
		t.Errorf("unexpected message %q", res.Error)
	}
	if len(d.calls) != 0 {
		t.Errorf("redam must not be dispatched without input, calls %v", d.calls)
	}
}

func TestExecuteDependentChainPriority(t *testing.T) {
	d := newFakeDispatcher()
	d.plate["sunarp"] = result.Success(map[string]any{
		"owners": []string{"QUISPE MAMANI, JUAN"},
	})
	d.owner["dni_peru"] = result.Success(map[string]any{"dni": "11111111"})
	d.owner["dni_nombre"] = result.Success(map[string]any{"dni": "22222222"})
	d.doc["licencia"] = result.Success(map[string]any{"dni": "11111111", "licencia": "A1"})
	d.doc["redam"] = result.Success(map[string]any{"registered": false})
	a := newTestAggregator(t, d)

	resp, err := a.Execute(context.Background(), Request{
		Identifier: "ABC-123",
		Services:   []string{"sunarp", "dni_peru", "dni_nombre", "licencia", "redam"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	// licencia must use dni_peru's document, not dni_nombre's.
	if got := d.docArgs["licencia"]; got != "11111111" {
		t.Errorf("licencia got document %q, expected dni_peru's 11111111", got)
	}
	// redam prefers licencia's discovered document.
	if got := d.docArgs["redam"]; got != "11111111" {
		t.Errorf("redam got document %q, expected licencia's 11111111", got)
	}
	if resp.DocumentNumber != "11111111" {
		t.Errorf("aggregate document = %q", resp.DocumentNumber)
	}
}

func TestExecuteExplicitDocumentWinsChain(t *testing.T) {
	d := newFakeDispatcher()
	d.owner["dni_peru"] = result.Success(map[string]any{"dni": "99999999"})
	d.doc["licencia"] = result.Success(map[string]any{"licencia": "B2"})
	a := newTestAggregator(t, d)

	_, err := a.Execute(context.Background(), Request{
		Identifier:     "ABC-123",
		DocumentNumber: "12345678",
		Services:       []string{"licencia"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got := d.docArgs["licencia"]; got != "12345678" {
		t.Errorf("explicit document must win, got %q", got)
	}
}

func TestExecuteLicenciaFallsBackToOwnerPath(t *testing.T) {
	d := newFakeDispatcher()
	d.plate["sunarp"] = result.Success(map[string]any{
		"owners": []string{"FLORES HUAMAN PEDRO PABLO"},
	})
	d.owner["licencia"] = result.Success(map[string]any{"licencia": "C3"})
	a := newTestAggregator(t, d)

	resp, err := a.Execute(context.Background(), Request{
		Identifier: "ABC-123",
		Services:   []string{"sunarp", "licencia"},
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	res := resp.Services["licencia"]
	if !res.OK {
		t.Fatalf("owner-path licencia failed: %+v", res)
	}
	if res.Extra["owner_used"] == nil {
		t.Error("owner-path result should carry owner_used extra")
	}
}

func TestExecuteDependentsSurviveIndependentTimeouts(t *testing.T) {
	// Independents fail with timeouts; the dependent still gets its
	// explicit "input unavailable" result instead of hanging.
	d := newFakeDispatcher()
	d.delays["sunarp"] = 5 * time.Second
	d.delays["soat"] = 5 * time.Second
	cfg := config.Default()
	cfg.Lookups["sunarp"] = config.LookupConfig{TimeoutMs: 50}
	cfg.Lookups["soat"] = config.LookupConfig{TimeoutMs: 50}
	a := NewAggregator(d, cfg, testLogger(t))

	done := make(chan *Response, 1)
	go func() {
		resp, _ := a.Execute(context.Background(), Request{
			Identifier: "ABC-123",
			Services:   []string{"sunarp", "soat", "recompensas"},
		})
		done <- resp
	}()

	var resp *Response
	select {
	case resp = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("aggregate hung on timed-out independents")
	}

	if resp.Services["sunarp"].HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("sunarp should time out, got %+v", resp.Services["sunarp"])
	}
	rec := resp.Services["recompensas"]
	if rec.OK || rec.HTTPStatus != http.StatusBadRequest {
		t.Errorf("dependent should get explicit input-unavailable result, got %+v", rec)
	}
}
