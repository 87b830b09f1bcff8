package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	client "github.com/hanpama/graphserve/internal/client"
	config "github.com/hanpama/graphserve/internal/config"
	demo "github.com/hanpama/graphserve/internal/demo"
	eventbus "github.com/hanpama/graphserve/internal/eventbus"
	logging "github.com/hanpama/graphserve/internal/logging"
	metrics "github.com/hanpama/graphserve/internal/metrics"
	otel "github.com/hanpama/graphserve/internal/otel"
	resolver "github.com/hanpama/graphserve/internal/resolver"
	schema "github.com/hanpama/graphserve/internal/schema"
	server "github.com/hanpama/graphserve/internal/server"
)

const rootUsage = `graphserve - GraphQL over HTTP and WebSocket

USAGE:
  graphserve <command> [flags]

COMMANDS:
  serve            Run the GraphQL server with the demo schema
  demo             Run the demo client against a running server
  print-schema     Print the demo schema SDL
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>                      YAML configuration file
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body-bytes N            Maximum request body size (default: 1048576)
  -server.cors-origin <origin>        Allowed CORS origin. Repeatable
  -server.metadata-header <name>      Forward HTTP header to gRPC metadata. Repeatable
  -server.graphiql <bool>             Serve GraphiQL to browsers (default: true)
  -graphql.introspection <bool>       Enable GraphQL introspection (default: true)
  -graphql.max-batch-size N           Maximum operations per batch; 0 is unlimited (default: 50)
  -graphql.batch-concurrency N        Concurrent operations per query batch (default: 8)
  -graphql.query-cache-size N         Validated documents to cache (default: 1000)
  -graphql.workers N                  Resolver worker pool size (default: GOMAXPROCS)
  -ws.init-timeout <duration>         Wait for connection_init (default: 10s)
  -ws.keepalive <duration>            Server ping interval; 0 disables (default: 15s)
  -log.level <level>                  debug, info, warn or error (default: info)
  -log.format <format>                json or console (default: json)
  -metrics.enabled <bool>             Serve Prometheus metrics on /metrics (default: true)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: graphserve)
  -demo.database <dsn>                SQLite DSN for the demo store (default: :memory:)

Every flag can also be set through the environment: -server.max-body-bytes
is GRAPHSERVE_SERVER_MAX_BODY_BYTES. Flags override the environment, which
overrides the config file.
`

const demoUsage = `demo FLAGS:
  -url <url>               GraphQL endpoint (default: http://localhost:8080/graphql)
  -header <Name: value>    Extra request header. Repeatable
  -connect-timeout <d>     Connect timeout (default: 10s)
  -timeout <d>             Read and write timeout (default: 60s)
`

const printSchemaUsage = `print-schema FLAGS:
  -out <file>              Write SDL to file (default: stdout)
`

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("graphserve", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "demo":
		return cmdDemo(cmdArgs)
	case "print-schema":
		return cmdPrintSchema(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "demo":
		fmt.Fprint(stdout, demoUsage)
	case "print-schema":
		fmt.Fprint(stdout, printSchemaUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type headerFlag http.Header

func (h headerFlag) String() string { return "" }

func (h headerFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("invalid header %q, want Name: value", v)
	}
	http.Header(h).Add(name, strings.TrimSpace(value))
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	cfg, err := config.Parse(fs, args, os.LookupEnv)
	if err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventbus.Use(eventbus.New())
	defer logging.Subscribe(logger)()
	shutdownOtel, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownOtel(context.Background()) }()

	handler, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info().Str("addr", cfg.Server.Addr).Msg("GraphQL server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newApp wires the demo schema, store and resolvers behind the router. The
// returned cleanup releases them.
func newApp(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	sch, err := demo.Schema()
	if err != nil {
		return nil, nil, fmt.Errorf("build schema: %w", err)
	}
	store, err := demo.OpenStore(ctx, cfg.Demo.Database)
	if err != nil {
		return nil, nil, err
	}
	reg := demo.Register(resolver.New(resolver.WithWorkers(cfg.GraphQL.Workers)), store)
	cleanup := func() {
		reg.Close()
		_ = store.Close()
	}
	if err := reg.Bind(sch); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("bind resolvers: %w", err)
	}

	sopts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithMaxBatchSize(cfg.GraphQL.MaxBatchSize),
		server.WithBatchConcurrency(cfg.GraphQL.BatchConcurrency),
		server.WithQueryCache(cfg.GraphQL.QueryCacheSize),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithIntrospection(cfg.GraphQL.Introspection),
		server.WithWebSocket(cfg.WS.InitTimeout, cfg.WS.KeepAlive),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	h, err := server.New(reg, sch, sopts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("server init: %w", err)
	}
	// WebSocket sessions are hijacked, so srv.Shutdown leaves them running.
	// They must end before the registry stops its worker pool.
	release := cleanup
	cleanup = func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.Shutdown(sctx)
		release()
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		unsubscribe := metrics.NewCollector(promReg).Subscribe()
		metricsHandler = metrics.Handler(promReg)
		prev := cleanup
		cleanup = func() {
			unsubscribe()
			prev()
		}
	}
	return server.NewRouter(h, metricsHandler), cleanup, nil
}

func cmdDemo(args []string) error {
	url := "http://localhost:8080/graphql"
	connectTimeout := 10 * time.Second
	timeout := 60 * time.Second
	headers := headerFlag{}

	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&url, "url", url, "GraphQL endpoint")
	fs.Var(headers, "header", "Extra request header")
	fs.DurationVar(&connectTimeout, "connect-timeout", connectTimeout, "Connect timeout")
	fs.DurationVar(&timeout, "timeout", timeout, "Read and write timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, demoUsage)
		return err
	}

	opts := []client.Option{
		client.WithConnectTimeout(connectTimeout),
		client.WithReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	}
	for name, values := range headers {
		for _, v := range values {
			opts = append(opts, client.WithHeader(name, v))
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return demo.RunClient(ctx, client.New(url, opts...), stdout)
}

func cmdPrintSchema(args []string) error {
	outFile := ""
	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, printSchemaUsage)
		return err
	}

	sch, err := demo.Schema()
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	sdl := schema.Render(sch)
	if outFile == "" {
		fmt.Fprint(stdout, sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}
