package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-openapi/runtime/middleware"

	"github.com/veridia/device-trust/pkg/audit"
	"github.com/veridia/device-trust/pkg/auth"
	"github.com/veridia/device-trust/pkg/ca"
	"github.com/veridia/device-trust/pkg/config"
	devicesApi "github.com/veridia/device-trust/pkg/devices/api"
	devicesStore "github.com/veridia/device-trust/pkg/devices/models/device/store"
	devicedb "github.com/veridia/device-trust/pkg/devices/models/device/store/db"
	devicememory "github.com/veridia/device-trust/pkg/devices/models/device/store/memory"
	"github.com/veridia/device-trust/pkg/docs"
	"github.com/veridia/device-trust/pkg/mfa"
	"github.com/veridia/device-trust/pkg/session"
	"github.com/veridia/device-trust/pkg/trust"
	"github.com/veridia/device-trust/pkg/utils"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"gopkg.in/yaml.v2"
)

func main() {
	var logger log.Logger
	{
		logger = log.NewJSONLogger(os.Stdout)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = level.NewFilter(logger, level.AllowInfo())
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	err, cfg := config.NewConfig("trust")
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not read environment configuration values")
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "Environment configuration values loaded")

	var devicesDb devicesStore.DB
	if strings.ToLower(cfg.Store) == "db" {
		connStr := "dbname=" + cfg.PostgresDB + " user=" + cfg.PostgresUser + " password=" + cfg.PostgresPassword + " host=" + cfg.PostgresHostname + " port=" + cfg.PostgresPort + " sslmode=disable"
		devicesDb, err = devicedb.NewDB("postgres", connStr, logger)
		if err != nil {
			level.Error(logger).Log("err", err, "msg", "Could not start connection with device registry database. Will sleep for 5 seconds and exit the program")
			time.Sleep(5 * time.Second)
			os.Exit(1)
		}
		level.Info(logger).Log("msg", "Connection established with device registry database")
	} else {
		devicesDb = devicememory.NewDB()
		level.Info(logger).Log("msg", "Using in-memory device registry store")
	}

	jcfg, err := jaegercfg.FromEnv()
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not load Jaeger configuration values fron environment")
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "Jaeger configuration values loaded")
	tracer, closer, err := jcfg.NewTracer()
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not start Jaeger tracer")
		os.Exit(1)
	}
	defer closer.Close()
	level.Info(logger).Log("msg", "Jaeger tracer started")

	fieldKeys := []string{"method", "error"}

	sessionDuration, err := time.ParseDuration(cfg.SessionDuration)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not parse session duration")
		os.Exit(1)
	}
	challengeTimeout, err := time.ParseDuration(cfg.ChallengeTimeout)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not parse challenge timeout")
		os.Exit(1)
	}
	complianceTimeout, err := time.ParseDuration(cfg.ComplianceTimeout)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not parse compliance timeout")
		os.Exit(1)
	}

	enabledMethods := []mfa.Method{}
	for _, m := range strings.Split(cfg.EnabledMfaMethods, ",") {
		method := mfa.Method(strings.TrimSpace(m))
		if !mfa.ValidMethod(method) {
			level.Error(logger).Log("err", "unknown MFA method "+string(method), "msg", "Could not parse enabled MFA methods")
			os.Exit(1)
		}
		enabledMethods = append(enabledMethods, method)
	}

	trustedLocations := []string{}
	for _, l := range strings.Split(cfg.TrustedLocations, ",") {
		if l = strings.TrimSpace(l); l != "" {
			trustedLocations = append(trustedLocations, l)
		}
	}

	auditSink := audit.NewLoggerSink(log.With(logger, "component", "audit"), audit.NewMemorySink())

	authority := ca.NewSoftwareCA("Veridia Device Trust CA")
	issuer := session.NewIssuer(cfg.SessionSigningKey, sessionDuration, auditSink)
	engine := mfa.NewEngine(mfa.EngineConfig{
		ChallengeTimeout: challengeTimeout,
		MaxAttempts:      cfg.ChallengeMaxAttempts,
		EnabledMethods:   enabledMethods,
	}, mfa.LoggerNotifier{Logger: log.With(logger, "component", "notifier")}, auditSink, logger)
	scorer := trust.NewScorer(trustedLocations)

	var compliance trust.Provider
	if cfg.ComplianceAddress != "" {
		compliance = trust.NewHTTPProvider(cfg.ComplianceAddress, complianceTimeout, logger)
		level.Info(logger).Log("msg", "Compliance provider configured", "address", cfg.ComplianceAddress)
	}

	var ds devicesApi.Service
	{
		ds = devicesApi.NewDevicesService(devicesDb, authority, issuer, auditSink)
		ds = devicesApi.LoggingMiddleware(logger)(ds)
		ds = devicesApi.NewInstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "trust",
				Subsystem: "devices_service",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, fieldKeys),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "trust",
				Subsystem: "devices_service",
				Name:      "request_latency_microseconds",
				Help:      "Total duration of requests in microseconds.",
			}, fieldKeys),
		)(ds)
	}

	var as auth.Service
	{
		as = auth.NewAuthService(ds, scorer, compliance, complianceTimeout, engine, issuer)
		as = auth.LoggingMiddleware(logger)(as)
		as = auth.NewInstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "trust",
				Subsystem: "auth_service",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, fieldKeys),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "trust",
				Subsystem: "auth_service",
				Name:      "request_latency_microseconds",
				Help:      "Total duration of requests in microseconds.",
			}, fieldKeys),
		)(as)
	}

	openapiSpec := docs.NewOpenAPI3(cfg)

	openapiSpecJsonData, _ := json.Marshal(&openapiSpec)
	openapiSpecYamlData, _ := yaml.Marshal(&openapiSpec)

	err = os.MkdirAll("docs", 0744)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not create openapiv3 docs dir")
		os.Exit(1)
	}

	err = os.WriteFile(path.Join("docs", "openapiv3.json"), openapiSpecJsonData, 0644)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not create openapiv3 JSON spec file")
		os.Exit(1)
	}

	err = os.WriteFile(path.Join("docs", "openapiv3.yaml"), openapiSpecYamlData, 0644)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not create openapiv3 YAML spec file")
		os.Exit(1)
	}

	mux := http.NewServeMux()

	devicesHandler := devicesApi.MakeHTTPHandler(ds, log.With(logger, "component", "HTTPS"), tracer)
	authHandler := auth.MakeHTTPHandler(as, log.With(logger, "component", "HTTPS"), tracer)

	http.Handle("/", accessControl(mux))
	mux.Handle("/", http.FileServer(http.Dir("./docs")))
	mux.Handle("/v1/health", devicesHandler)
	mux.Handle("/v1/devices", devicesHandler)
	mux.Handle("/v1/devices/", devicesHandler)
	mux.Handle("/v1/auth", authHandler)
	mux.Handle("/v1/challenges/", authHandler)
	mux.Handle("/v1/sessions/", authHandler)
	mux.Handle("/v1/docs", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		BasePath: "/v1",
		SpecURL:  path.Join("/openapiv3.json"),
		Path:     "docs",
	}, mux))

	http.Handle("/metrics", promhttp.Handler())

	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		if strings.ToLower(cfg.Protocol) == "https" {
			if cfg.MutualTLSEnabled {
				mTlsCertPool, err := utils.CreateCAPool(cfg.MutualTLSClientCA)
				if err != nil {
					level.Error(logger).Log("err", err, "msg", "Could not create mTls Cert Pool")
					os.Exit(1)
				}
				tlsConfig := &tls.Config{
					ClientCAs:          mTlsCertPool,
					ClientAuth:         tls.RequireAndVerifyClientCert,
					InsecureSkipVerify: true,
				}

				tlsConfig.BuildNameToCertificate()

				http := &http.Server{
					Addr:      ":" + cfg.Port,
					TLSConfig: tlsConfig,
				}

				level.Info(logger).Log("transport", "Mutual TLS", "address", ":"+cfg.Port, "msg", "listening")
				errs <- http.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)

			} else {
				level.Info(logger).Log("transport", "HTTPS", "address", ":"+cfg.Port, "msg", "listening")
				errs <- http.ListenAndServeTLS(":"+cfg.Port, cfg.CertFile, cfg.KeyFile, nil)

			}
		} else if strings.ToLower(cfg.Protocol) == "http" {
			level.Info(logger).Log("transport", "HTTP", "address", ":"+cfg.Port, "msg", "listening")
			errs <- http.ListenAndServe(":"+cfg.Port, nil)

		} else {
			level.Error(logger).Log("err", "msg", "Unknown protocol")
			os.Exit(1)

		}
	}()
	level.Info(logger).Log("exit", <-errs)
}

func accessControl(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		h.ServeHTTP(w, r)
	})
}
