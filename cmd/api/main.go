package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stdlog "log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tokengate/internal/api/handler"
	"tokengate/internal/api/middleware"
	"tokengate/internal/api/websocket"
	"tokengate/internal/bot"
	"tokengate/internal/config"
	"tokengate/internal/entitle"
	"tokengate/internal/events"
	"tokengate/internal/ledger"
	"tokengate/internal/platform"
	"tokengate/internal/reconcile"
	"tokengate/internal/registry"
	"tokengate/internal/store"
	"tokengate/internal/verify"
)

const jwtSecretFile = "data/.sk"

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		stdlog.Fatalf("failed to initialize logger: %v", err)
	}
	log := zl.Sugar()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	db := initDB(cfg.DatabasePath, log)
	st := store.New(db)
	seedAdmin(st, log)
	jwtSecret := loadOrCreateJWTSecret(log)

	ledgerClient, err := ledger.Dial(cfg.EthereumNode, cfg.ExplorerURL, cfg.DefaultContract, cfg.CallTimeout)
	if err != nil {
		log.Fatalw("failed to connect to ledger node", "node", cfg.EthereumNode, "error", err)
	}
	registryClient := registry.New(cfg.RegistryURL, cfg.CallTimeout)
	evaluator := entitle.New(ledgerClient, registryClient, log)
	hub := events.NewHub()

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalw("failed to create bot session", "error", err)
	}
	engine := reconcile.NewEngine(st, platform.NewDiscord(session), evaluator, hub, log)
	botHandler := bot.New(session, st, engine, log)

	if cfg.DiscordToken == "" {
		log.Warn("DISCORD_TOKEN is not configured, bot will not start")
	} else {
		if err := botHandler.Start(); err != nil {
			log.Fatalw("failed to start bot", "error", err)
		}
		defer botHandler.Stop()
		engine.StartScheduler(cfg.VerifyInterval)
	}

	verifier := verify.New(cfg.ChainPrefix)
	router := setupRouter(st, verifier, engine, hub, jwtSecret, log)

	log.Infow("listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}

func initDB(path string, log *zap.SugaredLogger) *gorm.DB {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalw("failed to create data directory", "error", err)
	}

	gormLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		log.Fatalw("failed to connect database", "path", path, "error", err)
	}
	if err := store.Migrate(db); err != nil {
		log.Fatalw("failed to migrate database", "error", err)
	}
	return db
}

func seedAdmin(st *store.Store, log *zap.SugaredLogger) {
	created, err := st.EnsureAdminAccount(context.Background(), "admin", "admin123")
	if err != nil {
		log.Fatalw("failed to seed admin account", "error", err)
	}
	if created {
		log.Info("created initial admin account, password: 'admin123'")
	}
}

func loadOrCreateJWTSecret(log *zap.SugaredLogger) string {
	secretBytes, err := os.ReadFile(jwtSecretFile)
	if err != nil {
		if os.IsNotExist(err) {
			newSecret, err := generateRandomString(32)
			if err != nil {
				log.Fatalw("failed to generate JWT secret", "error", err)
			}
			if err := os.WriteFile(jwtSecretFile, []byte(newSecret), 0600); err != nil {
				log.Fatalw("failed to write JWT secret to file", "error", err)
			}
			log.Infow("generated new JWT secret", "file", jwtSecretFile)
			return newSecret
		}
		log.Fatalw("failed to read JWT secret file", "error", err)
	}
	return string(secretBytes)
}

func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func setupRouter(st *store.Store, verifier *verify.Verifier, engine *reconcile.Engine, hub *events.Hub, jwtSecret string, log *zap.SugaredLogger) http.Handler {
	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	public := router.Group("/api/v1")
	{
		public.POST("/nonce", handler.Nonce(st, log))
		public.POST("/authorize", handler.Authorize(st, verifier, engine, log))
		public.POST("/login", handler.Login(st, jwtSecret))
	}

	auth := router.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware(st, jwtSecret), middleware.RoleCheck("admin"))
	{
		auth.GET("/servers", handler.ListServers(st))
		auth.PUT("/servers/:externalId", handler.UpdateServer(st, log))
		auth.GET("/servers/:externalId/roles", handler.ListRoles(st))
		auth.POST("/servers/:externalId/roles", handler.CreateRole(st, engine, log))
		auth.PUT("/roles/:externalId", handler.UpdateRole(st, engine, log))
		auth.DELETE("/roles/:externalId", handler.DeleteRole(st, engine, log))
	}

	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(st, jwtSecret))
	{
		ws.GET("/events", func(c *gin.Context) {
			websocket.EventsHandler(c, hub)
		})
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
