package kpi

import (
	"go-kpi/internal/config"
	"go-kpi/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type KPIApi struct {
	KPIController *KPIController
	Config        *config.Config
}

func NewKPIApi(kpiController *KPIController, cfg *config.Config) *KPIApi {
	return &KPIApi{
		KPIController: kpiController,
		Config:        cfg,
	}
}

func (a *KPIApi) Setup(app *fiber.App) {
	group := app.Group("/api/kpis", middleware.AuthMiddleware(a.Config.SkipAuth))

	group.Get("/", a.KPIController.List)
	group.Get("/:id", a.KPIController.Get)
	group.Get("/:id/data", a.KPIController.GetData)
	group.Get("/:id/data/export", a.KPIController.Export)
	group.Get("/:id/loads", a.KPIController.ListLoads)

	ws := app.Group("/api/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, middleware.AuthMiddleware(a.Config.SkipAuth))
	ws.Get("/kpis/:id", websocket.New(a.KPIController.Live))
}
