package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/pkg/kit"

	"github.com/hazyhaar/scribby/pkg/trace"
)

// resultLimit caps the stored result so full study documents do not bloat the log.
const resultLimit = 4096

// Middleware wraps an endpoint and logs one entry per call.
func Middleware(logger Logger, action, transport string) func(kit.Endpoint) kit.Endpoint {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			ctx = trace.Ensure(ctx)
			start := time.Now()

			resp, err := next(ctx, request)

			entry := &Entry{
				Action:     action,
				Transport:  transport,
				RequestID:  trace.ID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if params, e := json.Marshal(request); e == nil {
				entry.Parameters = string(params)
			}
			if err != nil {
				entry.Error = err.Error()
				entry.Status = "error"
			} else {
				entry.Status = "success"
				if result, e := json.Marshal(resp); e == nil {
					entry.Result = clip(string(result))
				}
			}

			logger.LogAsync(entry)
			return resp, err
		}
	}
}

func clip(s string) string {
	if len(s) <= resultLimit {
		return s
	}
	return s[:resultLimit] + "..."
}
