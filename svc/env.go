package svc

import (
	"context"
	"log"
	"net"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/metrics"
	"github.com/remind101/pagecrypt/reporter"
	"github.com/remind101/pagecrypt/reporter/rollbar"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentracer"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// Config is the ambient configuration of a process. Empty addresses and
// tokens disable the matching integration.
type Config struct {
	// AppName names the service in metrics and traces.
	AppName string

	// LogLevel is one of debug, info, warn, error, crit.
	LogLevel string

	// StatsdAddr is the host:port of the DataDog statsd agent.
	StatsdAddr string

	// TraceAddr is the host:port of the DataDog trace agent.
	TraceAddr string

	RollbarToken       string
	RollbarEnvironment string
}

// Env holds global dependencies that need to be initialized in main() and
// injected as dependencies into an application.
type Env struct {
	Reporter reporter.Reporter
	Logger   logger.Logger
	Context  context.Context
	Close    func() // Should be called in a defer in main().
}

// InitAll will initialize all the common dependencies such as metrics, reporting,
// tracing, and logging.
func InitAll(c Config) Env {
	l := InitLogger(c.LogLevel)
	logger.DefaultLogger = l

	traceCloser := InitTracer(c.AppName, c.TraceAddr)
	metricsCloser := InitMetrics(c.AppName, c.StatsdAddr)

	r := InitReporter(c.RollbarToken, c.RollbarEnvironment)

	ctx := reporter.WithReporter(context.Background(), r)
	ctx = logger.WithLogger(ctx, l)

	return Env{
		Logger:   l,
		Reporter: r,
		Context:  ctx,
		Close: func() {
			reporter.Flush(ctx)
			traceCloser()
			metricsCloser()
		},
	}
}

// InitTracer installs the DataDog opentracing tracer as the global tracer.
// Without an agent address tracing stays a no-op.
func InitTracer(service, addr string) func() {
	if addr == "" {
		return func() {}
	}

	t := opentracer.New(
		tracer.WithService(service),
		tracer.WithAgentAddr(addr),
	)
	opentracing.SetGlobalTracer(t)

	return func() {
		tracer.Stop()
	}
}

// InitMetrics points package metrics at the DataDog statsd agent at addr and
// starts sampling runtime stats. Metrics stay no-ops when addr is empty or
// doesn't resolve.
func InitMetrics(app, addr string) (fn func()) {
	fn = func() {
		metrics.Close()
	}

	if addr == "" {
		return
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		logger.DefaultLogger.Warn("metrics.disabled", "addr", addr, "error", err)
		return
	}

	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		logger.DefaultLogger.Warn("metrics.disabled", "addr", addr, "error", err)
		return
	}

	r, err := metrics.NewDataDogMetricsReporter(net.JoinHostPort(addrs[0], port))
	if err != nil {
		logger.DefaultLogger.Warn("metrics.disabled", "addr", addr, "error", err)
		return
	}
	metrics.SetAppName(app)
	metrics.Reporter = r

	ctx, cancel := context.WithCancel(context.Background())
	go metrics.Runtime(ctx)

	return func() {
		cancel()
		metrics.Close()
	}
}

// InitLogger returns a leveled logger writing to stdout. Unknown levels fall
// back to info.
//
// If you want to replace the global default logger:
//
//	logger.DefaultLogger = InitLogger(level)
func InitLogger(level string) logger.Logger {
	lvl := logger.INFO
	if level != "" {
		if l, err := logger.ParseLevel(level); err == nil {
			lvl = l
		}
	}

	return logger.New(log.New(os.Stdout, "", log.LstdFlags), lvl)
}

// InitReporter returns a reporter that logs every error and, with a token
// and environment, also sends them to Rollbar.
func InitReporter(token, environment string) reporter.Reporter {
	rep := reporter.MultiReporter{reporter.NewLogReporter()}

	if token != "" && environment != "" {
		rollbar.ConfigureReporter(token, environment)
		rep = append(rep, rollbar.Reporter)
	} else {
		logger.DefaultLogger.Info("rollbar.disabled")
	}

	return rep
}
