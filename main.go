package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kinship/config"
	"kinship/database"
	"kinship/handlers"
	"kinship/identity"
	"kinship/logger"
	"kinship/metrics"
	"kinship/middleware"
	"kinship/presence"
	"kinship/services"
	"kinship/store"
	"kinship/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogDev)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.CreateTables(db, cfg.DBDriver); err != nil {
		return err
	}
	st := store.New(db)

	var tracker presence.Tracker = presence.NewMemory()
	if cfg.RedisAddr != "" {
		client, err := presence.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		tracker = presence.NewRedis(client, "kinship")
		zlog.Info("presence backed by redis", zap.String("addr", cfg.RedisAddr))
	}

	hub := websocket.NewHub(tracker, zlog.Named("hub"))
	defer hub.Shutdown()

	svc := services.New(services.Deps{
		Store:    st,
		Emitter:  hub,
		Online:   hub,
		Presence: tracker,
		Logger:   zlog.Named("services"),
	})
	tokens := identity.NewJWT(cfg.JWTSecret, cfg.JWTTTL)
	ws := websocket.NewServer(hub, tokens, svc.Chat, zlog.Named("ws"), websocket.Options{
		EventsPerSecond: cfg.WSEventsPerSecond,
		EventBurst:      cfg.WSEventBurst,
		AllowedOrigins:  cfg.AllowedOrigins(),
	})

	if !cfg.LogDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter(zlog, cfg.AllowedOrigins())

	r.GET("/health", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Connections()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", ws.HandleWebSocket)

	handlers.New(st, svc, tokens, zlog.Named("api")).Mount(r, middleware.AuthMiddleware(tokens))

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter returns an engine with the shared middleware. RequestLogger sits
// outside Recovery so a recovered panic still gets its access log line.
func newRouter(zlog *zap.Logger, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(zlog), middleware.Recovery(zlog), metrics.Middleware())
	r.Use(middleware.CORSMiddleware(origins))
	return r
}
