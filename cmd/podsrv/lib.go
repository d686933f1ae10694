package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/labpod/golabpod/packet"
	"github.com/labpod/golabpod/scope"
	"github.com/labpod/golabpod/server/middleware/locker"
)

// Config holds the initialization parameters for the server and the pod
// behind it.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Transport selects how to reach the pod: serial, usb or mock
	Transport string `yaml:"Transport"`

	// SerialAddr is the serial device path when Transport is serial
	SerialAddr string `yaml:"SerialAddr"`

	// Baud is the serial line rate
	Baud int `yaml:"Baud"`

	// TimeoutMS bounds each transport read in milliseconds
	TimeoutMS int `yaml:"TimeoutMS"`

	// Calibration is an optional yaml file overriding the factory calibration
	Calibration string `yaml:"Calibration"`

	// Endpoint is the URL stem the pod routes are served under
	Endpoint string `yaml:"Endpoint"`
}

var (
	captureRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "pod",
		Name:      "capture_requests_total",
		Help:      "Capture requests served over HTTP.",
	})

	captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Subsystem: "pod",
		Name:      "capture_duration_seconds",
		Help:      "Wall time of capture requests, including any trigger wait.",
		Buckets:   prometheus.ExponentialBuckets(1e-3, 4, 9),
	})

	errorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "pod",
		Name:      "errors_total",
		Help:      "Errors returned to HTTP clients, by class.",
	}, []string{"class"})
)

// instrumentCaptures is an HTTP middleware counting and timing captures.
func instrumentCaptures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/capture") {
			captureRequests.Inc()
			defer prometheus.NewTimer(captureDuration).ObserveDuration()
		}
		next.ServeHTTP(w, r)
	})
}

// buildHandler connects to the pod over the configured transport.
func buildHandler(c Config) (packet.Handler, error) {
	timeout := time.Duration(c.TimeoutMS) * time.Millisecond
	switch strings.ToLower(c.Transport) {
	case "mock":
		return scope.NewSim(), nil
	case "serial":
		dev := packet.NewDevice(c.SerialAddr, c.Baud, timeout)
		if err := dev.Open(); err != nil {
			return nil, err
		}
		return dev, nil
	case "usb":
		return packet.OpenUSB(packet.PodVID, packet.PodPID, timeout)
	default:
		return nil, fmt.Errorf("transport %q not understood, must be serial, usb or mock", c.Transport)
	}
}

// stemSanitize prepares a URL stem for mounting, "pod/" => "/pod".
func stemSanitize(s string) string {
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return strings.TrimSuffix(s, "/")
}

// BuildMux connects to the pod and binds its routes, the lock interface,
// prometheus metrics and the route listing onto one router.
func BuildMux(c Config, logger zerolog.Logger) (chi.Router, error) {
	cal := scope.DefaultCalibration()
	if c.Calibration != "" {
		var err error
		cal, err = scope.LoadCalibration(c.Calibration)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", c.Calibration).Msg("loaded calibration overrides")
	}
	h, err := buildHandler(c)
	if err != nil {
		return nil, err
	}
	pod := scope.New(h, cal)
	httper := scope.NewHTTPScope(pod)
	httper.OnError = func(err error) {
		errorCount.WithLabelValues(scope.ErrorClass(err)).Inc()
	}

	lock := locker.New()
	locker.Inject(httper, lock)

	for _, coll := range []prometheus.Collector{captureRequests, captureDuration, errorCount} {
		if err := prometheus.Register(coll); err != nil {
			logger.Debug().Err(err).Msg("metric already registered")
		}
	}
	if err := prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem: "pod",
			Name:      "locked",
			Help:      "1 while the HTTP interface is locked for a long acquisition.",
		},
		func() float64 {
			if lock.Locked() {
				return 1
			}
			return 0
		},
	)); err != nil {
		logger.Debug().Err(err).Msg("lock gauge already registered")
	}

	stem := stemSanitize(c.Endpoint)
	sub := chi.NewRouter()
	sub.Use(lock.Check)
	sub.Use(instrumentCaptures)
	httper.RT().Bind(sub)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Mount(stem, sub)
	root.Handle("/metrics", promhttp.Handler())

	supergraph := map[string][]string{stem: httper.RT().Endpoints()}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, nil
}

func run() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		logger.Fatal().Err(err).Msg("unmarshaling config")
	}
	mux, err := BuildMux(c, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("setting up the pod")
	}
	srv := &http.Server{Addr: c.Addr, Handler: mux}
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		logger.Info().Str("addr", c.Addr).Str("transport", c.Transport).Msg("listening for requests")
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case s := <-sig:
			logger.Info().Str("signal", s.String()).Msg("shutting down")
		case <-ctx.Done():
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
