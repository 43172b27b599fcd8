/*
Copyright 2026 The Refresh Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httputil contains HTTP error helpers used by the ingest
// handler.
package httputil

import (
	"fmt"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"
)

// IsLocalhost reports whether the request came over a loopback
// address.
func IsLocalhost(req *http.Request) bool {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// BadRequestError replies with a 400 and logs the reason.
func BadRequestError(conn http.ResponseWriter, errorMessage string, args ...interface{}) {
	logrus.Infof("Bad request: %s", fmt.Sprintf(errorMessage, args...))
	http.Error(conn, "bad request", http.StatusBadRequest)
}

// MethodNotAllowedError replies with a 405.
func MethodNotAllowedError(conn http.ResponseWriter) {
	http.Error(conn, "method not allowed", http.StatusMethodNotAllowed)
}

// RequestEntityTooLargeError replies with a 413.
func RequestEntityTooLargeError(conn http.ResponseWriter) {
	http.Error(conn, "request entity too large", http.StatusRequestEntityTooLarge)
}

// ServeError replies with a 500. The error detail is only echoed to
// loopback callers; remote callers get a generic message.
func ServeError(conn http.ResponseWriter, req *http.Request, err error) {
	logrus.WithError(err).Error("request failed")
	if IsLocalhost(req) {
		http.Error(conn, fmt.Sprintf("server error: %v", err), http.StatusInternalServerError)
		return
	}
	http.Error(conn, "an internal error occurred, sorry", http.StatusInternalServerError)
}
