// MIT License
//
// Copyright 2018 Canonical Ledgers, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS
// IN THE SOFTWARE.

package srv

import (
	"context"
	"strings"
	"time"

	jrpc "github.com/AdamSLevy/jsonrpc2/v13"
	log "github.com/sirupsen/logrus"
)

// ScoutdDefault is where the cli looks for a local daemon.
const ScoutdDefault = "http://localhost:8070"

// Client talks json rpc to a scoutd daemon. The embedded jsonrpc2.Client
// carries the http settings, such as BasicAuth for a daemon behind a proxy.
type Client struct {
	ScoutdServer string
	jrpc.Client
}

// NewClient points at ScoutdDefault. Requests time out after 15 seconds.
func NewClient() *Client {
	c := &Client{ScoutdServer: ScoutdDefault}
	c.Timeout = 15 * time.Second
	return c
}

// Request calls method on the daemon's /v1 endpoint and decodes the result.
func (c *Client) Request(method string, params, result interface{}) error {
	return c.RequestContext(context.Background(), method, params, result)
}

// RequestContext is Request bounded by ctx.
func (c *Client) RequestContext(ctx context.Context, method string, params, result interface{}) error {
	endpoint := strings.TrimRight(c.ScoutdServer, "/") + "/v1"
	if c.DebugRequest {
		log.WithFields(log.Fields{"endpoint": endpoint, "method": method}).Debug("scoutd request")
	}
	return c.Client.Request(ctx, endpoint, method, params, result)
}
