package lookup

import (
	"context"
	goerrors "errors"
	"net/http"
	"testing"
	"time"

	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

func TestRunSuccess(t *testing.T) {
	res := Run(context.Background(), "soat", time.Second, func(ctx context.Context) (result.ServiceResult, error) {
		return result.Success(map[string]any{"policy": "active"}), nil
	})
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.DurationMs < 0 {
		t.Errorf("duration not recorded: %d", res.DurationMs)
	}
}

func TestRunTimeout(t *testing.T) {
	released := make(chan struct{})
	start := time.Now()

	res := Run(context.Background(), "slow", 50*time.Millisecond, func(ctx context.Context) (result.ServiceResult, error) {
		defer close(released)
		<-ctx.Done()
		return result.ServiceResult{}, ctx.Err()
	})

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Run took %v, expected prompt timeout", elapsed)
	}
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("status = %d, expected 504", res.HTTPStatus)
	}
	if res.DurationMs < 50 {
		t.Errorf("duration %d ms should cover the timeout window", res.DurationMs)
	}

	// The operation must have observed cancellation and released.
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Error("operation never observed cancellation")
	}
}

func TestRunNeverReturningOperation(t *testing.T) {
	res := Run(context.Background(), "hung", 50*time.Millisecond, func(ctx context.Context) (result.ServiceResult, error) {
		select {} // never returns
	})
	if res.OK || res.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("expected 504 for hung operation, got %+v", res)
	}
}

func TestRunStructuredErrorPassThrough(t *testing.T) {
	res := Run(context.Background(), "redam", time.Second, func(ctx context.Context) (result.ServiceResult, error) {
		return result.ServiceResult{}, errors.New(errors.KindValidation, "redam", "document number required for redam")
	})
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.HTTPStatus != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400", res.HTTPStatus)
	}
	if res.Error != "document number required for redam" {
		t.Errorf("message not passed through: %q", res.Error)
	}
}

func TestRunPlainErrorBecomes500(t *testing.T) {
	res := Run(context.Background(), "broken", time.Second, func(ctx context.Context) (result.ServiceResult, error) {
		return result.ServiceResult{}, goerrors.New("portal exploded")
	})
	if res.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("status = %d, expected 500", res.HTTPStatus)
	}
	if res.Error != "portal exploded" {
		t.Errorf("unexpected message %q", res.Error)
	}
}
