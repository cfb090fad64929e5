package web

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/pkg/healthcheck"
	"github.com/atlassian/bucketd/pkg/util"
)

type httpServer struct {
	logger  logrus.FieldLogger
	address string
	Router  *mux.Router
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

var done = struct{}{}

// Options selects the endpoints a server exposes.
type Options struct {
	EnableExpVar      bool
	EnableMetrics     bool
	EnableHealthcheck bool
	HealthChecks      []healthcheck.HealthcheckFunc
	DeepChecks        []healthcheck.HealthcheckFunc
}

// NewHttpServerFromViper creates the web server configured by the web-addr parameter and the web section,
// or nil if web-addr is empty.
func NewHttpServerFromViper(v *viper.Viper, logger logrus.FieldLogger, buckets *bucketd.Buckets, healthChecks, deepChecks []healthcheck.HealthcheckFunc) (*httpServer, error) {
	address := v.GetString(bucketd.ParamWebAddr)
	if address == "" {
		return nil, nil
	}
	vSub := util.GetSubViper(v, "web")
	vSub.SetDefault("enable-expvar", true)
	vSub.SetDefault("enable-metrics", true)
	vSub.SetDefault("enable-healthcheck", true)

	return NewHttpServer(logger, buckets, address, Options{
		EnableExpVar:      vSub.GetBool("enable-expvar"),
		EnableMetrics:     vSub.GetBool("enable-metrics"),
		EnableHealthcheck: vSub.GetBool("enable-healthcheck"),
		HealthChecks:      healthChecks,
		DeepChecks:        deepChecks,
	})
}

// NewHttpServer creates a server exposing the store read only.
func NewHttpServer(logger logrus.FieldLogger, buckets *bucketd.Buckets, address string, opts Options) (*httpServer, error) {
	var routes []route

	server := &httpServer{
		logger:  logger,
		address: address,
	}

	if opts.EnableExpVar {
		routes = append(routes,
			route{path: "/expvar", handler: expvar.Handler().ServeHTTP, method: "GET", name: "expvar_get"},
		)
	}

	if opts.EnableMetrics {
		handler, err := newMetricsHandler(buckets)
		if err != nil {
			return nil, err
		}
		routes = append(routes,
			route{path: "/metrics", handler: handler.ServeHTTP, method: "GET", name: "metrics_get"},
		)
	}

	if opts.EnableHealthcheck {
		hc := &healthChecker{
			logger:       logger,
			healthChecks: append([]healthcheck.HealthcheckFunc{storeCheck(buckets)}, opts.HealthChecks...),
			deepChecks:   opts.DeepChecks,
		}
		routes = append(routes,
			route{path: "/healthcheck", handler: hc.healthCheck, method: "GET", name: "healthcheck_get"},
			route{path: "/deepcheck", handler: hc.deepCheck, method: "GET", name: "deepcheck_get"},
		)
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("must enable at least one of expvar, metrics, or healthcheck")
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logger.WithFields(logrus.Fields{
		"address":            address,
		"enable-expvar":      opts.EnableExpVar,
		"enable-metrics":     opts.EnableMetrics,
		"enable-healthcheck": opts.EnableHealthcheck,
	}).Info("Created server")

	return server, nil
}

func (hs *httpServer) notFound(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("not found"))
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.HandleFunc(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %v", route.name, err)
		}
	}

	return router, nil
}

func (hs *httpServer) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logFields := logrus.Fields{
			"srcip": strings.Split(req.RemoteAddr, ":")[0],
			"path":  req.URL.Path,
		}
		if route := mux.CurrentRoute(req); route == nil {
			logFields["method"] = req.Method
		} else {
			logFields["route"] = route.GetName()
		}
		if source := req.Header.Get("X-Forwarded-For"); source != "" {
			logFields["forwarded_for"] = source
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		logFields["duration"] = float64(time.Since(start)) / float64(time.Millisecond)
		hs.logger.WithFields(logFields).Debug("request")
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func (hs *httpServer) Run(ctx context.Context) {
	server := &http.Server{
		Addr:    hs.address,
		Handler: hs.Router,
	}

	chStopped := make(chan struct{}, 1)
	go hs.waitAndStop(ctx, server, chStopped)

	hs.logger.WithField("address", server.Addr).Info("listening")

	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		hs.logger.WithError(err).Error("web server failed")
		return
	}

	select {
	case <-chStopped:
	case <-time.After(6 * time.Second):
		hs.logger.Info("timeout waiting for webserver to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.
func (hs *httpServer) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	hs.logger.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(timeoutCtx); err != nil {
		hs.logger.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- done
}
