// Package admin serves the gateway's operator endpoints: the live session
// list, Prometheus metrics and a health check.
package admin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	textMediaType  = contenttype.NewMediaType("text/plain")
	listMediaTypes = []contenttype.MediaType{jsonMediaType, textMediaType}
)

// Option configures the admin handler.
type Option func(*config)

type config struct {
	log      *slog.Logger
	gatherer prometheus.Gatherer
}

// WithLogger sets the logger used for request failures.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithGatherer exposes g on /metrics. Without it /metrics is not served.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *config) { c.gatherer = g }
}

// SessionView is the admin representation of one Bot.
type SessionView struct {
	bot.Info
	Locks []TransactionView `json:"locks,omitempty"`
}

type TransactionView struct {
	Conversation string    `json:"conversation"`
	Service      string    `json:"service"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type handler struct {
	sessions *bot.Registry
	log      *slog.Logger
}

// New returns the admin mux:
//
//	GET /healthz          liveness and session count
//	GET /sessions         every live session, JSON or text
//	GET /sessions/{id}    one session with its transaction locks
//	GET /metrics          Prometheus exposition, when a gatherer is set
func New(sessions *bot.Registry, opts ...Option) http.Handler {
	cfg := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &handler{sessions: sessions, log: cfg.log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /sessions", h.list)
	mux.HandleFunc("GET /sessions/{id}", h.get)
	if cfg.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}
	return mux
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.sessions.Len()})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	mt, _, err := contenttype.GetAcceptableMediaType(r, listMediaTypes)
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "supported types: application/json, text/plain")
		return
	}

	bots := h.sessions.List()
	if mt.Type == textMediaType.Type && mt.Subtype == textMediaType.Subtype {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACCOUNT\tUIN\tNICKNAME\tVERSION\tUPTIME\tSENT\tRECEIVED\tPENDING\tTXNS")
		for _, b := range bots {
			info := b.Info()
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				info.AccountID, info.UIN, info.Nickname, info.Version,
				info.Uptime.Truncate(time.Second), info.Sent, info.Received, info.Pending, info.Transactions)
		}
		if err := tw.Flush(); err != nil {
			h.log.WarnContext(r.Context(), "admin.sessions.write.fail", slog.String("err", err.Error()))
		}
		return
	}

	views := make([]SessionView, 0, len(bots))
	for _, b := range bots {
		views = append(views, SessionView{Info: b.Info()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}
	view := SessionView{Info: b.Info()}
	for _, txn := range b.Transactions() {
		view.Locks = append(view.Locks, TransactionView{
			Conversation: txn.Key.String(),
			Service:      txn.Owner.ServiceName(),
			CreatedAt:    txn.CreatedAt,
			ExpiresAt:    txn.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}
