// Command assetfetch downloads one or more assets through the worker
// pool and writes them to disk, with optional Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/IvanBrykalov/assetcache/metrics/prom"
	"github.com/IvanBrykalov/assetcache/pool"
)

func main() {
	// ---- Flags ----
	var (
		parallel  = flag.IntP("parallel", "p", 0, "worker slots (0=auto, clamped to [1,4])")
		handshake = flag.Duration("handshake-timeout", 1500*time.Millisecond, "worker handshake timeout")
		taskTO    = flag.Duration("task-timeout", 30*time.Minute, "per-download inactivity timeout")
		outDir    = flag.StringP("out", "o", ".", "output directory")
		verbose   = flag.BoolP("verbose", "v", false, "debug logging")

		metricsAddr = flag.String("http", "", "serve Prometheus metrics at addr (e.g. :8080); empty = disabled")
	)
	flag.Parse()

	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: assetfetch [flags] URL [URL...]")
		fmt.Fprintln(os.Stderr, "       comma-separate URLs to treat them as fallbacks for one asset")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opt := pool.Options{
		Parallelism:      *parallel,
		HandshakeTimeout: *handshake,
		TaskTimeout:      *taskTO,
		Logger:           logger,
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	if *metricsAddr != "" {
		opt.Metrics = prom.NewPool(nil, "assetcache", "pool", nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics: serving", "addr", *metricsAddr)
			logger.Error("metrics server stopped", "err", http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	p := pool.New(opt)
	defer func() { _ = p.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One Submit per argument; comma-separated URLs are fallback
	// candidates for the same asset.
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i, arg := range urls {
		wg.Add(1)
		go func(n int, arg string) {
			defer wg.Done()
			endpoints := strings.Split(arg, ",")

			res, err := p.Submit(ctx, pool.Request{
				Endpoints: endpoints,
				OnProgress: func(pct int) {
					logger.Debug("progress", "asset", n, "pct", pct)
				},
			})
			if err != nil {
				logger.Error("download failed", "asset", n, "url", endpoints[0], "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			name := res.Filename
			if name == "" {
				name = fmt.Sprintf("asset-%d", n)
			}
			dst := filepath.Join(*outDir, name)
			if err := os.WriteFile(dst, res.Bytes, 0o644); err != nil {
				logger.Error("write failed", "asset", n, "path", dst, "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			logger.Info("saved", "asset", n, "path", dst,
				"bytes", len(res.Bytes), "mime", res.MIMEType, "source", res.SourceEndpoint)
		}(i, arg)
	}
	wg.Wait()

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d downloads failed\n", failed, len(urls))
		os.Exit(1)
	}
}
