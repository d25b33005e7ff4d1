package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zephyrtronium/cytubebot/room"
)

func (robo *Robot) api(ctx context.Context, listen string) error {
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     robo.router(),
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		robo.log.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		robo.log.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (robo *Robot) router() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(robo.metrics.Collectors()...)
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	r.Get("/debug/pprof/", pprof.Index)
	r.Get("/debug/pprof/cmdline", pprof.Cmdline)
	r.Get("/debug/pprof/profile", pprof.Profile)
	r.Get("/debug/pprof/symbol", pprof.Symbol)
	r.Get("/debug/pprof/trace", pprof.Trace)
	r.Get("/api/state", robo.apiState)
	r.Get("/api/users/{name}", robo.apiUser)
	return r
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

// apiState serves a snapshot of the room. The snapshot is taken on the loop,
// so it is unavailable while the bot is disconnected.
func (robo *Robot) apiState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := robo.log.With(slog.String("api", "state"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.URL.Path), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	type state struct {
		Room     room.Snapshot `json:"room"`
		Managing bool          `json:"managing"`
		Muted    bool          `json:"muted"`
		Ready    bool          `json:"ready"`
		Limit    int           `json:"limit"`
		Status   int           `json:"status"`
	}
	ch := make(chan state, 1)
	robo.post(ctx, func(context.Context) error {
		ch <- state{
			Room:     robo.room.Snapshot(),
			Managing: robo.settings.Managing,
			Muted:    robo.settings.Muted,
			Ready:    robo.ready,
			Limit:    robo.room.Limit,
			Status:   http.StatusOK,
		}
		return nil
	})
	var u state
	select {
	case <-ctx.Done():
		log.WarnContext(ctx, "no snapshot", slog.Any("err", ctx.Err()))
		jsonerror(w, http.StatusServiceUnavailable, "room is not connected")
		return
	case u = <-ch:
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

// apiUser serves a user's recorded rank and statistics.
func (robo *Robot) apiUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := robo.log.With(slog.String("api", "user"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.URL.Path), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	name := chi.URLParam(r, "name")
	rank, err := robo.store.UserRank(ctx, name)
	if err != nil {
		log.ErrorContext(ctx, "couldn't get rank", slog.String("user", name), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	st, err := robo.store.UserStats(ctx, name)
	if err != nil {
		log.ErrorContext(ctx, "couldn't get stats", slog.String("user", name), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := struct {
		Name    string `json:"name"`
		Rank    string `json:"rank"`
		Plays   int64  `json:"plays"`
		Chat    int64  `json:"chat"`
		Cookies int64  `json:"cookies"`
		Status  int    `json:"status"`
	}{
		Name:    name,
		Rank:    rank.String(),
		Plays:   st.Plays,
		Chat:    st.Chat,
		Cookies: st.Cookies,
		Status:  http.StatusOK,
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}
