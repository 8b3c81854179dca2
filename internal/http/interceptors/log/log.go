// Copyright 2018-2024 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package log logs every processed HTTP request with its status and
// timing. The daemon usually runs behind a reverse proxy, so the
// client address honors X-Forwarded-For.
package log

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/DACCS-Climate/Magpie/pkg/appctx"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/utils"
)

// New returns a new HTTP middleware that logs HTTP requests and responses.
func New() global.Middleware {
	return handler
}

func handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{w: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		writeLog(appctx.GetLogger(r.Context()), r, start, rec)
	})
}

func writeLog(log *zerolog.Logger, r *http.Request, start time.Time, rec *responseRecorder) {
	client, err := utils.GetClientIP(r)
	if err != nil {
		client = r.RemoteAddr
	}

	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}

	var event *zerolog.Event
	switch {
	case rec.status < 400:
		event = log.Info()
	case rec.status < 500:
		event = log.Warn()
	default:
		event = log.Error()
	}
	event.Str("client", client).Str("method", r.Method).Str("uri", uri).
		Int("status", rec.status).Int("size", rec.size).
		Dur("duration", time.Since(start)).
		Msg("processed http request")
}

// responseRecorder wraps an http.ResponseWriter and keeps track of the
// HTTP status code and body size for the log line.
type responseRecorder struct {
	w      http.ResponseWriter
	status int
	size   int
}

func (rec *responseRecorder) Header() http.Header {
	return rec.w.Header()
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	n, err := rec.w.Write(b)
	rec.size += n
	return n, err
}

func (rec *responseRecorder) WriteHeader(status int) {
	rec.w.WriteHeader(status)
	rec.status = status
}

func (rec *responseRecorder) Flush() {
	if f, ok := rec.w.(http.Flusher); ok {
		f.Flush()
	}
}
