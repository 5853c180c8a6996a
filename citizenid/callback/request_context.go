// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"net/http"
)

// requestContext returns the request's context, which is also canceled when
// the handler's ctx is done.  The returned cancel func must be called.
func requestContext(ctx context.Context, req *http.Request) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(req.Context())
	switch {
	case ctx == nil:
		return reqCtx, cancel
	case ctx.Err() != nil:
		cancel()
		return reqCtx, cancel
	}
	stop := context.AfterFunc(ctx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}
