package lookup

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"time"

	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/observability"
)

// Operation is one portal query. It must honor ctx cancellation and
// release whatever it acquired on every exit path.
type Operation func(ctx context.Context) (result.ServiceResult, error)

// Run executes one named lookup under a bounded timeout and normalizes
// whatever happens into a ServiceResult. Duration is recorded on every
// outcome, timeouts included.
func Run(ctx context.Context, name string, timeout time.Duration, op Operation) result.ServiceResult {
	start := time.Now()
	finish := observability.StartSpan(ctx, "lookup", name)

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res result.ServiceResult
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := op(opCtx)
		done <- outcome{res: res, err: err}
	}()

	var res result.ServiceResult
	select {
	case <-opCtx.Done():
		if goerrors.Is(opCtx.Err(), context.DeadlineExceeded) {
			res = result.Failure(http.StatusGatewayTimeout,
				fmt.Sprintf("timeout after %d ms", timeout.Milliseconds()))
		} else {
			res = result.Failure(http.StatusInternalServerError, "lookup canceled")
		}
	case out := <-done:
		switch {
		case out.err == nil:
			res = out.res
		case errors.IsKind(out.err, errors.KindTimeout):
			res = result.Failure(http.StatusGatewayTimeout, errors.PublicMessage(out.err))
		default:
			var typed *errors.Error
			if goerrors.As(out.err, &typed) {
				res = result.Failure(errors.HTTPStatus(out.err), typed.Message)
			} else {
				res = result.Failure(http.StatusInternalServerError, out.err.Error())
			}
		}
	}

	res.DurationMs = time.Since(start).Milliseconds()

	var spanErr error
	if !res.OK {
		spanErr = goerrors.New(res.Error)
	}
	finish(spanErr)
	observability.RecordMetric(ctx, "lookup_duration_ms", float64(res.DurationMs),
		map[string]string{"service": name, "ok": fmt.Sprintf("%t", res.OK)})

	return res
}
