package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/imgedge/imgedge/pkg/config"
	"github.com/imgedge/imgedge/pkg/edge"
	"github.com/imgedge/imgedge/pkg/monitoring"
)

const (
	// Version of imgedge
	Version = "0.1.0"
	// BANNER just fancy command line banner
	BANNER = `
 _                          _
(_)_ __ ___   __ _  ___  __| | __ _  ___
| | '_ ` + "`" + ` _ \ / _` + "`" + ` |/ _ \/ _` + "`" + ` |/ _` + "`" + ` |/ _ \
| | | | | | | (_| |  __/ (_| | (_| |  __/
|_|_| |_| |_|\__, |\___|\__,_|\__, |\___|
             |___/            |___/
 Version: %s
`
	shutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "configuration/config.yml", "Path to configuration")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(Version)
		return
	}

	fmt.Printf(BANNER, "v"+Version)
	fmt.Printf("Config file %s\n", *configPath)

	imgConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to load config: %s\n", err)
		os.Exit(1)
	}

	logger, err := monitoring.NewLogger(imgConfig.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to create logger: %s\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)
	monitoring.RegisterLogger(logger)
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reporter := monitoring.NewPrometheusReporter(registry)
	if err := reporter.RegisterEdgeMetrics(); err != nil {
		logger.Fatal("unable to register metrics", zap.Error(err))
	}
	monitoring.RegisterReporter(reporter)

	dist, err := edge.New(imgConfig)
	if err != nil {
		logger.Fatal("unable to create distribution", zap.Error(err))
	}

	var handler http.Handler = dist.Handler()
	if imgConfig.Server.H2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	writeTimeout := time.Duration(imgConfig.Server.RequestTimeout+10) * time.Second
	servers := []*http.Server{
		{
			Addr:         imgConfig.Server.Listen,
			ReadTimeout:  2 * time.Minute,
			WriteTimeout: writeTimeout,
			Handler:      handler,
		},
		{
			Addr:         imgConfig.Server.InternalListen,
			ReadTimeout:  time.Minute,
			WriteTimeout: time.Minute,
			Handler:      dist.InternalHandler(registry),
		},
	}

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			logger.Info("imgedge listening", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("imgedge server error", zap.String("addr", s.Addr), zap.Error(err))
			}
		}(s)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("imgedge shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logger.Warn("imgedge shutdown error", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
	wg.Wait()
}
