// Package logging configures logrus and provides the HTTP request logger.
package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// InitLogging sets the global log level and text formatter.
func InitLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}

// RequestLogger logs one line per request. Server errors log at error level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := log.WithFields(log.Fields{
			"client_ip":  r.RemoteAddr,
			"duration":   duration,
			"method":     r.Method,
			"path":       r.RequestURI,
			"status":     status,
			"request_id": middleware.GetReqID(r.Context()),
		})

		if status >= 500 {
			entry.Error(http.StatusText(status))
		} else {
			entry.Debug("")
		}
	})
}
