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
	"net/http"
	"time"

	jrpc "github.com/AdamSLevy/jsonrpc2/v13"
	"github.com/rs/cors"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/node"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// APIServer serves the JSON RPC 2.0 api of a daemon.
type APIServer struct {
	Node   *node.Scoutd
	Config *viper.Viper
}

func NewAPIServer(conf *viper.Viper, n *node.Scoutd) *APIServer {
	s := new(APIServer)
	s.Node = n
	s.Config = conf
	return s
}

// Handler is the api with CORS enabled, served at both "/" and "/v1".
func (s *APIServer) Handler() http.Handler {
	jrpcHandler := jrpc.HTTPRequestHandler(s.jrpcMethods(), log.StandardLogger())

	srvMux := http.NewServeMux()
	srvMux.Handle("/", jrpcHandler)
	srvMux.Handle("/v1", jrpcHandler)

	c := cors.New(cors.Options{AllowedOrigins: []string{"*"}})
	return c.Handler(srvMux)
}

// Start the server in its own goroutine. If stop is closed, the server is
// closed and any goroutines will exit. The done channel is closed when the
// server exits for any reason. If the done channel is closed before the stop
// channel is closed, an error occurred. Errors are logged.
func (s *APIServer) Start(stop <-chan struct{}) (done <-chan struct{}) {
	addr := s.Config.GetString(config.APIListen)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server.
	_done := make(chan struct{})
	log.Infof("Listening on %v...", addr)
	go func() {
		err := srv.ListenAndServe()
		if err != http.ErrServerClosed {
			log.Errorf("srv.ListenAndServe(): %v", err)
		}
		close(_done)
	}()
	// Listen for stop signal.
	go func() {
		select {
		case <-stop:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Errorf("srv.Shutdown(): %v", err)
			}
		case <-_done:
		}
	}()
	return _done
}
