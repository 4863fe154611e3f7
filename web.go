package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Seednode/gitgame/internal/chunk"
	"github.com/Seednode/gitgame/internal/file"
	"github.com/Seednode/gitgame/internal/github"
	"github.com/Seednode/gitgame/internal/metrics"
	"github.com/Seednode/gitgame/internal/session"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func humanReadableSize(bytes int) string {
	const unit = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "kMGTPE"[exp])
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("gitgame v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// newProviderCache returns the shared redis cache when one is configured,
// and an in-process LRU otherwise. The returned func releases it.
func newProviderCache(ctx context.Context, cfg *Config) (github.Cache, func() error, error) {
	if cfg.redisAddr == "" {
		cache, err := github.NewLRUCache(cfg.cacheSize)
		if err != nil {
			return nil, nil, err
		}

		logf(cfg, "START: Caching up to %d provider responses in memory", cfg.cacheSize)

		return cache, func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	cache := github.NewRedisCache(rdb, cfg.cacheTTL)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cache.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.redisAddr, err)
	}

	logf(cfg, "START: Caching provider responses in redis at %s", cfg.redisAddr)

	return cache, rdb.Close, nil
}

// sessionOptions builds the per-session engine for each new session. All
// randomness in a session comes from one generator owned by its event loop.
func sessionOptions(cfg *Config, provider file.Provider) func() session.Options {
	rule := file.AllRules{
		file.NewExtensionRule(cfg.extensions),
		file.SizeRule{Max: cfg.maxFileSize},
	}

	return func() session.Options {
		rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		l := logger(cfg)

		return session.Options{
			Sources: func(author string) file.Source {
				return file.NewGithubSource(provider, rule, author, file.SourceOptions{
					MaxLoadableRepos: cfg.reposPerFill,
					Rand:             rng,
					Logf:             l,
				})
			},
			Fetcher:    chunk.NewWindowFetcher(cfg.chunkSize, cfg.peekSize, cfg.peeks, l),
			Rand:       rng,
			MaxChoices: cfg.maxChoices,
			GuessTime:  cfg.guessTime,
			PeekPeriod: cfg.peekPeriod,
			Logf:       l,
		}
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logf(cfg, "START: gitgame v%s", releaseVersion)

	cache, closeCache, err := newProviderCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	provider := github.New(github.Options{
		Token:             cfg.githubToken,
		APIURL:            cfg.githubAPI,
		RawURL:            cfg.githubRaw,
		RequestsPerSecond: cfg.githubRPS,
		Burst:             max(1, int(cfg.githubRPS)),
		Timeout:           timeout,
		Cache:             cache,
		Logf:              logger(cfg),
	})

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	errs := make(chan error, 64)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	g, gctx := errgroup.WithContext(ctx)

	sessions := newRegistry(gctx, cfg, sessionOptions(cfg, provider))

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.GET(cfg.prefix+"/ratelimit", serveRateLimit(cfg, provider, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerGitGame(cfg, mux, sessions, provider, errs)

	g.Go(func() error {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return sessions.reaperLoop(gctx, cfg.sessionTimeout)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-errs:
				fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
			}
		}
	})

	return g.Wait()
}
