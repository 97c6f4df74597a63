package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/keithlinneman/sitedrop/internal/cfg"
	"github.com/keithlinneman/sitedrop/internal/health"
	"github.com/keithlinneman/sitedrop/internal/httpmw"
	"github.com/keithlinneman/sitedrop/internal/httpserver"
	"github.com/keithlinneman/sitedrop/internal/log"
	"github.com/keithlinneman/sitedrop/internal/metrics"
	"github.com/keithlinneman/sitedrop/internal/opshttp"
	"github.com/keithlinneman/sitedrop/internal/otelx"
	"github.com/keithlinneman/sitedrop/internal/preload"
	"github.com/keithlinneman/sitedrop/internal/prof"
	"github.com/keithlinneman/sitedrop/internal/ratelimit"
	"github.com/keithlinneman/sitedrop/internal/sitehandler"
	"github.com/keithlinneman/sitedrop/internal/uploadhttp"
	v "github.com/keithlinneman/sitedrop/internal/version"
)

const appName = "sitedrop"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix SITEDROP_ and validate
	cfg.FillFromEnv(flag.CommandLine, "SITEDROP_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stLvl := lvl
	if conf.StacktraceLevel != "" {
		stLvl, _ = log.ParseLevel(conf.StacktraceLevel)
	}
	lg, err := log.New(log.Options{
		App:             appName,
		Level:           lvl,
		StacktraceLevel: stLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"site_dir", conf.SiteDir,
		"max_upload_bytes", conf.MaxUploadBytes,
		"upload_rate", conf.UploadRatePerSec,
		"upload_burst", conf.UploadBurst,
		"trusted_hops", conf.TrustedHops,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_preload", conf.EnablePreload,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// Site directory must exist before anything serves or extracts into it
	siteDir, err := filepath.Abs(conf.SiteDir)
	if err != nil {
		L.Error(ctx, err, "failed to resolve site directory", "site_dir", conf.SiteDir)
		os.Exit(1)
	}
	if err := os.MkdirAll(siteDir, 0o755); err != nil {
		L.Error(ctx, err, "failed to create site directory", "site_dir", siteDir)
		os.Exit(1)
	}

	// Optionally seed the site directory from S3 before serving. Failure is
	// logged but not fatal: an empty site still serves 404s and accepts
	// uploads, which is better than crash-looping on transient AWS issues.
	if conf.EnablePreload {
		loader, lerr := preload.NewLoader(ctx, preload.Options{
			Logger:   L,
			SSMParam: conf.PreloadSSMParam,
			S3Bucket: conf.PreloadS3Bucket,
			S3Prefix: conf.PreloadS3Prefix,
			SiteDir:  siteDir,
		})
		if lerr != nil {
			m.IncPreloadError()
			L.Error(ctx, lerr, "failed to create preload loader, starting without seeded content")
		} else if lerr := loader.Load(ctx); lerr != nil {
			m.IncPreloadError()
			L.Error(ctx, lerr, "failed to preload site archive, starting without seeded content")
		} else {
			L.Info(ctx, "preloaded site archive from S3",
				"s3_bucket", conf.PreloadS3Bucket,
				"s3_prefix", conf.PreloadS3Prefix,
			)
		}
	}

	siteHandler, err := sitehandler.New(&sitehandler.Options{
		Logger: L,
		Root:   os.DirFS(siteDir),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	uploadAPI := uploadhttp.NewAPI(siteDir, L, m)

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness fails while draining or if the site directory disappears
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(func(ctx context.Context) error {
			fi, err := os.Stat(siteDir)
			if err != nil {
				return fmt.Errorf("site directory unavailable: %w", err)
			}
			if !fi.IsDir() {
				return fmt.Errorf("site path %s is not a directory", siteDir)
			}
			return nil
		}),
	)

	// Rate limiter applied to the upload routes only
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.UploadRatePerSec, conf.UploadBurst),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	siteHTTPStop, err := httpserver.Start(
		ctx,
		&httpserver.Options{
			Logger:       L,
			Port:         conf.HTTPPort,
			Health:       health.Fixed(true, ""),
			Readiness:    readiness,
			APIRoutes:    uploadAPI.RegisterRoutes,
			SiteHandler:  siteHandler,
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
			MetricsMW:    m.Middleware,
			RateLimitMW:  limiter.Middleware,
			ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
			MaxBodyBytes: conf.MaxUploadBytes,
		},
	)
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin/ops listener serves metrics, health checks and pprof
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness checks so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "site http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when we were started with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
