package cdp

import (
	"context"
	"errors"
	"sync/atomic"

	"autframe/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
)

var errRouteHandled = errors.New("cdp: request already handled")

// route 单个被暂停的请求
type route struct {
	client  *cdp.Client
	id      fetch.RequestID
	req     *domain.Request
	handled atomic.Bool
}

func newRoute(client *cdp.Client, ev *fetch.RequestPausedReply, req *domain.Request) *route {
	return &route{client: client, id: ev.RequestID, req: req}
}

func (r *route) Request() *domain.Request { return r.req }

// Fulfill 以合成响应结束请求
func (r *route) Fulfill(ctx context.Context, resp *domain.Response) error {
	if !r.handled.CompareAndSwap(false, true) {
		return errRouteHandled
	}
	args := &fetch.FulfillRequestArgs{
		RequestID:    r.id,
		ResponseCode: resp.StatusCode,
	}
	if len(resp.Headers) > 0 {
		args.ResponseHeaders = ToHeaderEntries(resp.Headers)
	}
	if len(resp.Body) > 0 {
		args.Body = resp.Body
	}
	return r.client.Fetch.FulfillRequest(ctx, args)
}

// Continue 原样放行请求
func (r *route) Continue(ctx context.Context) error {
	if !r.handled.CompareAndSwap(false, true) {
		return errRouteHandled
	}
	return r.client.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: r.id})
}
