package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"opensearch/internal/opensearch"
)

func main() {
	var (
		configPath string
		listen     string
		port       int
		debug      bool
	)
	flag.StringVar(&configPath, "config", getenvDefault("OPENSEARCH_CONFIG", opensearch.DefaultConfigPath), "path to opensearch.yaml")
	flag.StringVarP(&listen, "listen", "l", "", "listen host (overrides server.listen)")
	flag.IntVarP(&port, "port", "p", 0, "port (overrides server.port)")
	flag.BoolVarP(&debug, "debug", "g", false, "debug mode")
	flag.Parse()

	cfg, err := opensearch.LoadConfig(configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	log, err := opensearch.NewLogger(cfg.Logging, debug, os.Stdout)
	if err != nil {
		logrus.Fatalf("init logging: %v", err)
	}

	svc, err := opensearch.NewService(cfg, log)
	if err != nil {
		log.Fatalf("init service: %v", err)
	}
	defer svc.Close()

	addr := net.JoinHostPort(cfg.Server.Listen, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}

	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithFields(logrus.Fields{
			"addr":  addr,
			"cache": cfg.Cache.Backend,
		}).Infof("opensearch listening on %s", addr)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
