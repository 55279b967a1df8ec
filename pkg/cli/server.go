package cli

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/mchmarny/credscore/pkg/scoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverHostDefault         = "127.0.0.1"
)

var (
	//go:embed assets/* templates/*
	embedFS embed.FS

	portFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "Port on which the server will listen (default: config server.port)",
		EnvVars: []string{"CREDSCORE_PORT"},
	}

	hostFlag = &cli.StringFlag{
		Name:    "host",
		Usage:   "Address on which the server will listen",
		Value:   serverHostDefault,
		EnvVars: []string{"CREDSCORE_HOST"},
	}

	noBrowserFlag = &cli.BoolFlag{
		Name:    "no-browser",
		Aliases: []string{"nb"},
		Usage:   "Do not open browser automatically",
	}

	serverCmd = &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start the scoring UI and API server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			portFlag,
			hostFlag,
			noBrowserFlag,
		},
	}
)

func cmdStartServer(c *cli.Context) error {
	cfg := getConfig(c)
	port := cfg.Config.Server.Port
	if c.IsSet(portFlag.Name) {
		port = c.Int(portFlag.Name)
	}
	address := fmt.Sprintf("%s:%d", c.String(hostFlag.Name), port)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// the model and reference must load before the server accepts requests
	svc, err := getService(c, scoring.WithMetrics(scoring.NewMetrics(reg)))
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(svc, reg),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("error shutting down server", "error", err)
		}
		return nil
	})

	url := fmt.Sprintf("http://%s", address)
	slog.Info("server started", "address", url)

	if !c.Bool(noBrowserFlag.Name) {
		openBrowser(url)
	}

	return g.Wait()
}

func makeRouter(svc *scoring.Service, reg *prometheus.Registry) http.Handler {
	tmpl := template.Must(template.New("").Funcs(templateFuncs).ParseFS(embedFS, "templates/*.html"))

	mux := http.NewServeMux()

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(embedFS)))
	mux.HandleFunc("GET /favicon.ico", faviconHandler)

	// Views
	mux.HandleFunc("GET /{$}", homeViewHandler(tmpl, svc))
	mux.HandleFunc("POST /predict", predictViewHandler(tmpl, svc))
	mux.HandleFunc("POST /batch", batchViewHandler(tmpl, svc))

	// API
	mux.HandleFunc("POST /api/v1/score", scoreAPIHandler(svc))
	mux.HandleFunc("POST /api/v1/batch", batchAPIHandler(svc))
	mux.HandleFunc("GET /api/v1/features", featuresAPIHandler(svc))

	// Ops
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return requestID(accessLog(recovery(mux)))
}

func openBrowser(url string) {
	var cmd string
	args := make([]string, 0, 1)

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
	case "linux":
		cmd = "xdg-open"
	default: // windows
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler"}
	}

	args = append(args, url)
	if err := exec.Command(cmd, args...).Start(); err != nil {
		slog.Error("failed to open browser", "error", err)
	}
}
