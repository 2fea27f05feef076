package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/portal-api-client/pkg/cache"
	"github.com/Sternrassler/portal-api-client/pkg/config"
	"github.com/Sternrassler/portal-api-client/pkg/github"
	"github.com/Sternrassler/portal-api-client/pkg/jira"
	"github.com/Sternrassler/portal-api-client/pkg/logging"
	"github.com/Sternrassler/portal-api-client/pkg/metrics"
	"github.com/Sternrassler/portal-api-client/pkg/pagination"
	"github.com/Sternrassler/portal-api-client/pkg/ratelimit"
	"github.com/Sternrassler/portal-api-client/pkg/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Service: "portal-proxy",
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
	}
	logger.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")

	sched := scheduler.New(scheduler.Config{
		MinDelay:   cfg.Scheduler.MinDelay,
		MaxBackoff: cfg.Scheduler.MaxBackoff,
	}, logging.NewLogger("scheduler"))
	tracker := ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))

	githubClient, err := github.New(github.Config{
		BaseURL:    cfg.GitHub.APIURL,
		Token:      cfg.GitHub.Token,
		MaxRetries: cfg.Scheduler.MaxRetries,
		Scheduler:  sched,
		Tracker:    tracker,
		Cache:      cache.NewManager(redisClient, cfg.CacheRetention),
	})
	if err != nil {
		return fmt.Errorf("create github client: %w", err)
	}

	var jiraClient *jira.Client
	if cfg.Jira.APIURL != "" {
		jiraClient, err = jira.New(jira.Config{
			BaseURL:   cfg.Jira.APIURL,
			Product:   pagination.ParseProduct(cfg.Jira.Product),
			Token:     cfg.Jira.Token,
			Email:     cfg.Jira.Email,
			RateLimit: cfg.Jira.RateLimit,
		}, nil, logging.NewLogger("jira-client"))
		if err != nil {
			return fmt.Errorf("create jira client: %w", err)
		}
		logger.Info().Str("product", string(jiraClient.Product())).Msg("Jira search enabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(redisClient, githubClient, jiraClient, tracker, sched),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting portal proxy server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMux(redisClient *redis.Client, githubClient *github.Client, jiraClient *jira.Client, tracker *ratelimit.Tracker, sched *scheduler.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/github/", githubProxyHandler(githubClient))
	mux.HandleFunc("/jira/search", jiraSearchHandler(jiraClient))
	mux.HandleFunc("/ratelimit", rateLimitHandler(tracker, sched))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// githubProxyHandler forwards GET /github/<path> to the GitHub API through
// the scheduler. Upstream errors keep their status and body.
func githubProxyHandler(githubClient *github.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// /github/repos/octo/hello -> /repos/octo/hello
		path := strings.TrimPrefix(r.URL.Path, "/github")
		if path == "" || path == "/" {
			http.Error(w, "missing GitHub API path", http.StatusBadRequest)
			return
		}
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()

		req, err := githubClient.NewRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if accept := r.Header.Get("Accept"); accept != "" && accept != "*/*" {
			req.Header.Set("Accept", accept)
		}

		resp, err := githubClient.Do(req)
		if err != nil {
			var respErr *ratelimit.ResponseError
			if errors.As(err, &respErr) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(respErr.StatusCode)
				w.Write(respErr.Body)
				return
			}
			http.Error(w, fmt.Sprintf("GitHub request failed: %v", err), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for _, key := range []string{"Content-Type", "ETag", "Link", "X-From-Cache"} {
			if v := resp.Header.Get(key); v != "" {
				w.Header().Set(key, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}
}

type searchResponse struct {
	Total  int                 `json:"total"`
	Issues []pagination.Ticket `json:"issues"`
}

// jiraSearchHandler serves GET /jira/search?jql=...&maxResults=...
func jiraSearchHandler(jiraClient *jira.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jiraClient == nil {
			http.Error(w, "jira is not configured", http.StatusServiceUnavailable)
			return
		}

		jql := r.URL.Query().Get("jql")
		if jql == "" {
			http.Error(w, "missing jql parameter", http.StatusBadRequest)
			return
		}

		maxResults := 0
		if raw := r.URL.Query().Get("maxResults"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "invalid maxResults parameter", http.StatusBadRequest)
				return
			}
			maxResults = v
		}

		tickets, err := jiraClient.SearchIssues(r.Context(), jql, maxResults)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if tickets == nil {
			tickets = []pagination.Ticket{}
		}

		writeJSON(w, searchResponse{Total: len(tickets), Issues: tickets})
	}
}

type rateLimitResponse struct {
	Quota     *ratelimit.QuotaState `json:"quota"`
	Scheduler schedulerStatus       `json:"scheduler"`
}

type schedulerStatus struct {
	Multiplier      float64   `json:"multiplier"`
	LastRequestTime time.Time `json:"last_request_time"`
	Pending         int       `json:"pending"`
}

// rateLimitHandler reports the last seen GitHub quota and the scheduler's
// backoff state.
func rateLimitHandler(tracker *ratelimit.Tracker, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := tracker.GetState(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		backoff := sched.State()
		writeJSON(w, rateLimitResponse{
			Quota: state,
			Scheduler: schedulerStatus{
				Multiplier:      backoff.Multiplier,
				LastRequestTime: backoff.LastRequestTime,
				Pending:         sched.Pending(),
			},
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
