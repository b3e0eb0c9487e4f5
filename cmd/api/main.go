package main

import (
	"context"
	"fmt"
	"log"

	common_api "go-kpi/internal/common/api"
	"go-kpi/internal/config"
	"go-kpi/internal/database"
	"go-kpi/internal/elastic"
	"go-kpi/internal/features/kpi"
	"go-kpi/internal/features/system"
	"go-kpi/internal/logger"
	"go-kpi/internal/metrics"
	"go-kpi/internal/middleware"
	"go-kpi/pkg/utils"

	_ "go-kpi/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// NewSearchClient connects to the cluster named in the config.
func NewSearchClient(cfg *config.Config, logger *zap.Logger) (*elastic.Client, error) {
	return elastic.NewClient(cfg.ES, logger.Named("elastic"))
}

// NewKPIRegistry reads the KPI definitions file.
func NewKPIRegistry(cfg *config.Config, logger *zap.Logger) (*kpi.Registry, error) {
	registry, err := kpi.LoadRegistryFile(cfg.KPIDefinitionsPath)
	if err != nil {
		return nil, err
	}
	logger.Info("KPI definitions loaded",
		zap.String("path", cfg.KPIDefinitionsPath),
		zap.Int("count", len(registry.List())))
	return registry, nil
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, logger *zap.Logger) {
	logger.Info("Registering routes", zap.Int("count", len(routes)))
	for _, route := range routes {
		logger.Debug("Setting up route", zap.String("type", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// StartLiveHub runs the refresh scheduler for the lifetime of the app.
func StartLiveHub(lc fx.Lifecycle, hub *kpi.LiveHub) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return hub.Start()
		},
		OnStop: func(ctx context.Context) error {
			hub.Stop()
			return nil
		},
	})
}

// @title           KPI Data Loader API
// @version         1.0
// @description     Loads KPI datasets from Elasticsearch aggregations.

// @host            localhost:8000
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Search cluster and metrics
			NewSearchClient,
			metrics.NewCollector,
			func(c *elastic.Client) kpi.Searcher { return c },
			func(c *elastic.Client) system.Pinger { return c },

			// Initialize Repository
			NewKPIRegistry,
			kpi.NewLoadAuditRepository,

			kpi.NewKPIService,
			kpi.NewLiveHub,

			// Initialize Controller
			kpi.NewKPIController,

			// Initialize API Routes
			AsRoute(kpi.NewKPIApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewMetricsApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartLiveHub,
		),
	)

	app.Run()
}
