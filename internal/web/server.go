// Package web provides an HTTP server for the pulse-meter attributes and status.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sweeney/pulse-meter/internal/attr"
	"github.com/sweeney/pulse-meter/internal/logging"
	"github.com/sweeney/pulse-meter/internal/status"
)

// maxWriteSize bounds an attribute write body, the size of one sysfs page.
const maxWriteSize = 4096

// Server serves the attribute surface and status over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	attrs      *attr.Set
	logger     logging.Logger
}

// New creates a Server that reads state from the given tracker and attributes.
func New(addr string, tracker *status.Tracker, attrs *attr.Set, logger logging.Logger) *Server {
	s := &Server{tracker: tracker, attrs: attrs, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /attrs", s.handleAttrs)
	mux.HandleFunc("GET /attr/{name}", s.handleRead)
	mux.HandleFunc("PUT /attr/{name}", s.handleWrite)
	mux.HandleFunc("POST /attr/{name}", s.handleWrite)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleAttrs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatAttrs(s.attrs))
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	v, err := s.attrs.Read(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, v+"\n")
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWriteSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err := s.attrs.Write(name, string(body)); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Debugf("http: %s %s=%q", r.RemoteAddr, name, strings.TrimSpace(string(body)))

	v, err := s.attrs.Read(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, v+"\n")
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attr.ErrUnknownAttribute):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, attr.ErrReadOnly):
		w.Header().Set("Allow", "GET")
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
	default:
		s.logger.Warnf("http: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
