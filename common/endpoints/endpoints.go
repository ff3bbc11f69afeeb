// Package endpoints serves the admin HTTP interface: health, rendered stats and
// any JSON snapshots a binary registers.
package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/twitter/depsched/common/stats"
)

const (
	HealthPath  = "/health"
	MetricsPath = "/admin/metrics.json"
)

// JSONProvider returns a value to encode as the response of a JSON endpoint.
type JSONProvider func() interface{}

// NewTwitterServer creates an admin server for addr. maxConns > 0 limits the number
// of simultaneous connections.
func NewTwitterServer(addr string, maxConns int, stat stats.StatsReceiver) *TwitterServer {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	s := &TwitterServer{
		Addr:     addr,
		MaxConns: maxConns,
		Stats:    stat,
		mux:      http.NewServeMux(),
		started:  stats.Time.Now(),
	}
	s.mux.HandleFunc("/", s.helpHandler)
	s.mux.HandleFunc(HealthPath, s.counted(healthHandler))
	s.mux.HandleFunc(MetricsPath, s.counted(s.statsHandler))
	s.paths = []string{HealthPath, MetricsPath}
	return s
}

type TwitterServer struct {
	Addr     string
	MaxConns int
	Stats    stats.StatsReceiver

	mux     *http.ServeMux
	paths   []string
	started time.Time
}

// AddJSON serves the JSON encoding of provider's result at path.
// Must be called before Serve.
func (s *TwitterServer) AddJSON(path string, provider JSONProvider) {
	s.mux.HandleFunc(path, s.counted(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, provider())
	}))
	s.paths = append(s.paths, path)
}

// Handler returns the server's routes, for use with httptest.
func (s *TwitterServer) Handler() http.Handler {
	return s.mux
}

// Listen binds s.Addr, applying the connection limit.
func (s *TwitterServer) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return nil, err
	}
	if s.MaxConns > 0 {
		log.Infof("Creating LimitListener with max: %d", s.MaxConns)
		ln = netutil.LimitListener(ln, s.MaxConns)
	}
	return ln, nil
}

// Serve handles requests on ln until it is closed.
func (s *TwitterServer) Serve(ln net.Listener) error {
	log.Infof("Serving http & stats on %s", ln.Addr())
	return (&http.Server{Handler: s.mux}).Serve(ln)
}

// ListenAndServe is Listen followed by Serve.
func (s *TwitterServer) ListenAndServe() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *TwitterServer) counted(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Stats.Counter(stats.AdminServeCounter).Inc(1)
		h(w, r)
	}
}

func (s *TwitterServer) helpHandler(w http.ResponseWriter, r *http.Request) {
	paths := append([]string(nil), s.paths...)
	sort.Strings(paths)
	http.Error(w, fmt.Sprintf("Common paths: '%s'", strings.Join(paths, "', '")), http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *TwitterServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	uptime := stats.Time.Since(s.started) / time.Millisecond
	s.Stats.Gauge(stats.AdminUptime_ms).Update(int64(uptime))
	setJSONContentType(w)

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	var b []byte
	var err error
	if r.URL.Query().Get("pretty") == "true" {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	setJSONContentType(w)
	w.Write(b)
}

func setJSONContentType(w http.ResponseWriter) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)
}
