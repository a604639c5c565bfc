package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/face"
	"classattend/internal/faceclient"
	"classattend/internal/handler"
	"classattend/internal/httpmiddleware"
	"classattend/internal/identity"
	"classattend/internal/metrics"
	"classattend/internal/queue"
	"classattend/internal/registry"
	"classattend/internal/session"
	"classattend/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

type invalidator interface {
	Invalidate(ctx context.Context)
}

// buildRegistry layers the descriptor cache and the nearest-neighbour index
// over the database scan according to cfg.
func buildRegistry(cfg config.App, db store.Backend, redisClient *redis.Client) (attendance.Registry, []invalidator) {
	scan := registry.NewScan(db)
	var (
		src    registry.Source     = scan
		cands  attendance.Registry = scan
		layers []invalidator
	)
	if cfg.DescriptorCacheTTL > 0 {
		cached := registry.NewCached(src, redisClient, registry.DefaultCacheKey, cfg.DescriptorCacheTTL)
		src, cands = cached, cached
		layers = append(layers, cached)
	}
	if cfg.MatchIndex == "hnsw" {
		indexed := registry.NewIndexed(src, cfg.DescriptorDim, cfg.HNSWCandidates)
		cands = indexed
		layers = append(layers, indexed)
	}
	return cands, layers
}

func newVerifier(ctx context.Context, cfg config.App) (auth.Verifier, error) {
	if cfg.AuthProvider == "firebase" {
		return auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	}
	return auth.NewJWTVerifier(cfg.JWTSigningKey, cfg.JWTIssuer), nil
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.SQLitePath, true)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// No separate worker can reach an in-process queue, so drain it here.
		q = queue.NewInMemory(64)
		go func() {
			if err := queue.Drain(ctx, q, db, m.ObserveEvent); err != nil {
				log.Printf("event drain stopped: %v", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient, queue.DefaultKey)
	}

	matcher, err := face.NewMatcher(cfg.DescriptorDim, cfg.MatchThreshold)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	reg, layers := buildRegistry(cfg, db, redisClient)

	var extractor identity.Extractor
	if !cfg.FaceSkip {
		fc := faceclient.New(cfg.FaceServiceURL)
		if err := fc.Health(ctx); err != nil {
			log.Printf("warning: face service not available: %v", err)
		}
		extractor = fc
	}
	ids := identity.NewService(db, matcher, extractor)
	ids.OnChange(func(ctx context.Context) {
		for _, l := range layers {
			l.Invalidate(ctx)
		}
	})

	att := attendance.NewService(db, db, db, reg, matcher).
		WithPublisher(queue.NewEventPublisher(q)).
		WithObserver(m)
	sessions := session.NewService(db, loc)

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	h := handler.New(att, ids, sessions, db)
	h.AddHealthCheck("db", func(ctx context.Context) bool { return db.Ping(ctx) == nil })
	h.AddHealthCheck("redis", func(ctx context.Context) bool { return store.RedisHealthy(ctx, redisClient) })

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// Security headers
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	h.Register(r, verifier, limiter.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API listening on :%s (db=%s, index=%s, auth=%s)", cfg.HTTPPort, cfg.DatabaseDriver, cfg.MatchIndex, cfg.AuthProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// corsConfig allows any origin when the list contains "*"; credentials are
// only allowed for an explicit origin list.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
