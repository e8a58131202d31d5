package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"devboard/api"
	"devboard/bus"
	"devboard/github"
	"devboard/jobs"
	"devboard/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	usersTableName := os.Getenv("USERS_TABLE")
	tasksTableName := os.Getenv("TASKS_TABLE")
	logsTableName := os.Getenv("LOGS_TABLE")
	if connStr == "" || usersTableName == "" || tasksTableName == "" || logsTableName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, usersTableName, tasksTableName, logsTableName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)
	cache := storage.NewCache(rc)

	channel := os.Getenv("EVENTS_CHANNEL")
	if channel == "" {
		channel = "devboard-events"
	}
	hub := bus.New(rc, channel)

	testMode := os.Getenv("AUTH_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH_AUDIENCE")
		domain := os.Getenv("AUTH_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing auth config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	githubAPIURL := os.Getenv("GITHUB_API_URL")
	if githubAPIURL == "" {
		githubAPIURL = "https://api.github.com"
	}
	fetcher := github.NewFetcher(githubAPIURL)

	syncInterval := 15 * time.Minute
	if v := os.Getenv("ACTIVITY_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid ACTIVITY_SYNC_INTERVAL: %v", err)
		}
		syncInterval = d
	}
	syncPace := 2 * time.Second
	if v := os.Getenv("ACTIVITY_SYNC_PACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			log.Fatalf("invalid ACTIVITY_SYNC_PACE: %v", err)
		}
		syncPace = d
	}
	var retentionWindow time.Duration
	if v := os.Getenv("LOG_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("invalid LOG_RETENTION_DAYS: %v", err)
		}
		retentionWindow = time.Duration(n) * 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	go jobs.NewActivitySync(store, fetcher, hub, cache, syncInterval, syncPace).Run(ctx)
	go jobs.NewRetentionSweeper(store, retentionWindow).Run(ctx)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("devboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Config{
		Store:  store,
		Auth:   auth,
		Bus:    hub,
		Stream: hub,
		Cache:  cache,
		Github: func(token string) api.GithubClient {
			return github.NewClient(githubAPIURL, token)
		},
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
