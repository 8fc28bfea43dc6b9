package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/inletmail/inlet/internal/api/handlers"
	"github.com/inletmail/inlet/internal/api/middleware"
	"github.com/inletmail/inlet/internal/hub"
	"github.com/inletmail/inlet/internal/queue"
	"github.com/inletmail/inlet/internal/repository"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB     *gorm.DB
	Spool  *queue.Spool
	Hub    *hub.Hub
	Logger *slog.Logger

	// DefaultDomain is applied to rules created without a domain
	DefaultDomain string
	// APIKey guards /api routes when set (empty = disabled)
	APIKey string
	// AllowedOrigins restricts CORS and websocket upgrades
	AllowedOrigins []string
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	mappingRepo := repository.NewMappingRepository(cfg.DB)
	loggedRepo := repository.NewLoggedMailRepository(cfg.DB)

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	mappingHandler := handlers.NewMappingHandler(mappingRepo, cfg.DefaultDomain)
	loggedMailHandler := handlers.NewLoggedMailHandler(loggedRepo)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	api := e.Group("/api")
	api.Use(middleware.APIKeyAuth(cfg.APIKey, cfg.Logger))

	mappings := api.Group("/mappings")
	mappings.POST("", mappingHandler.Create)
	mappings.GET("", mappingHandler.List)
	mappings.GET("/:id", mappingHandler.Get)
	mappings.PUT("/:id", mappingHandler.Update)
	mappings.DELETE("/:id", mappingHandler.Delete)

	logged := api.Group("/logged-mails")
	logged.GET("", loggedMailHandler.List)
	logged.GET("/count", loggedMailHandler.Count)

	if cfg.Spool != nil {
		spoolHandler := handlers.NewSpoolHandler(cfg.Spool)
		spool := api.Group("/spool")
		spool.GET("", spoolHandler.Stats)
		spool.GET("/messages", spoolHandler.List)
	}

	if cfg.Hub != nil {
		upgrader := hub.NewSecureUpgrader(cfg.AllowedOrigins, cfg.Logger)
		e.GET("/ws", func(c echo.Context) error {
			conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
			if err != nil {
				return err
			}
			client := hub.NewClient(cfg.Hub, conn, cfg.Logger)
			cfg.Hub.Register(client)
			go client.WritePump()
			go client.ReadPump()
			return nil
		})
	}

	return e
}
