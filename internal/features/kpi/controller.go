package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	common_models "go-kpi/internal/common/models"
	"go-kpi/internal/elastic"
	"go-kpi/internal/middleware"
	"go-kpi/pkg/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type KPIController struct {
	KPIService KPIService
	Hub        *LiveHub
	Logger     *zap.Logger
}

func NewKPIController(kpiService KPIService, hub *LiveHub, logger *zap.Logger) *KPIController {
	return &KPIController{KPIService: kpiService, Hub: hub, Logger: logger}
}

// List godoc
// @Summary List KPIs
// @Description List all configured KPI descriptors
// @Tags kpis
// @Produce json
// @Success 200 {array} KPI
// @Router /api/kpis [get]
func (c *KPIController) List(ctx *fiber.Ctx) error {
	return ctx.JSON(c.KPIService.ListKPIs(ctx.UserContext()))
}

// Get godoc
// @Summary Get KPI
// @Description Get one KPI descriptor by ID
// @Tags kpis
// @Produce json
// @Param id path string true "KPI ID"
// @Success 200 {object} KPI
// @Failure 404 {object} models.ErrorResponse
// @Router /api/kpis/{id} [get]
func (c *KPIController) Get(ctx *fiber.Ctx) error {
	def, err := c.KPIService.GetKPI(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(def)
}

// GetData godoc
// @Summary Load KPI data
// @Description Run the KPI searches for a time window. Missing bounds fall back to the KPI default window and now.
// @Tags kpis
// @Produce json
// @Param id path string true "KPI ID"
// @Param from query int false "Window start, epoch millis"
// @Param to query int false "Window end, epoch millis"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse "Malformed or inverted window"
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/kpis/{id}/data [get]
func (c *KPIController) GetData(ctx *fiber.Ctx) error {
	load, err := c.load(ctx)
	if err != nil {
		return writeError(ctx, err)
	}
	ctx.Set("X-Load-Id", load.ID)
	return ctx.JSON(load.Result)
}

// Export godoc
// @Summary Export KPI data
// @Description Load KPI data and download it as an Excel workbook, one sheet per aggregation
// @Tags kpis
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "KPI ID"
// @Param from query int false "Window start, epoch millis"
// @Param to query int false "Window end, epoch millis"
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/kpis/{id}/data/export [get]
func (c *KPIController) Export(ctx *fiber.Ctx) error {
	load, err := c.load(ctx)
	if err != nil {
		return writeError(ctx, err)
	}

	content, filename, err := ExportToExcel(load.KPI, load.Result)
	if err != nil {
		return writeError(ctx, err)
	}

	ctx.Set("X-Load-Id", load.ID)
	ctx.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Send(content)
}

// ListLoads godoc
// @Summary List recent loads
// @Description Audit trail of the most recent loads of a KPI
// @Tags kpis
// @Produce json
// @Param id path string true "KPI ID"
// @Param limit query int false "Max records (default 50)"
// @Success 200 {array} LoadAudit
// @Failure 404 {object} models.ErrorResponse
// @Router /api/kpis/{id}/loads [get]
func (c *KPIController) ListLoads(ctx *fiber.Ctx) error {
	limit := int64(ctx.QueryInt("limit", 50))
	audits, err := c.KPIService.ListLoads(ctx.UserContext(), ctx.Params("id"), limit)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(audits)
}

// Live streams the KPI: one result right away, then one per scheduled refresh.
func (c *KPIController) Live(conn *websocket.Conn) {
	kpiID := conn.Params("id")
	log := c.Logger.With(zap.String("kpi", kpiID))

	claims, _ := conn.Locals(utils.UserClaimsKey).(*utils.UserClaims)

	sub, unsubscribe := c.Hub.Subscribe(kpiID)
	defer unsubscribe()

	load, err := c.KPIService.LoadData(context.Background(), LoadRequest{KPIID: kpiID, Claims: claims})
	if err != nil {
		if !writeLiveError(conn, log, err) || errors.Is(err, ErrKPINotFound) {
			return
		}
	} else {
		payload, err := json.Marshal(load.Result)
		if err != nil {
			log.Error("Failed to encode KPI result", zap.Error(err))
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Debug("Live subscriber left")
			return
		case payload := <-sub.C:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("Live write failed", zap.Error(err))
				return
			}
		}
	}
}

type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// writeLiveError sends a load failure to a live subscriber and reports
// whether the connection is still usable.
func writeLiveError(conn jsonWriter, log *zap.Logger, loadErr error) bool {
	if err := conn.WriteJSON(common_models.ErrorResponse{Error: loadErr.Error()}); err != nil {
		log.Debug("Live write failed", zap.Error(err))
		return false
	}
	return true
}

func (c *KPIController) load(ctx *fiber.Ctx) (*Load, error) {
	from, err := queryMillis(ctx, "from")
	if err != nil {
		return nil, err
	}
	to, err := queryMillis(ctx, "to")
	if err != nil {
		return nil, err
	}

	return c.KPIService.LoadData(ctx.UserContext(), LoadRequest{
		KPIID:      ctx.Params("id"),
		FromMillis: from,
		ToMillis:   to,
		Claims:     middleware.ClaimsFrom(ctx),
		Trigger:    TriggerRequest,
	})
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func queryMillis(ctx *fiber.Ctx, name string) (int64, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &badRequestError{msg: fmt.Sprintf("invalid %s: must be epoch milliseconds", name)}
	}
	return n, nil
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(ctx *fiber.Ctx, err error) error {
	var (
		badRequest *badRequestError
		configErr  *ConfigurationError
	)

	status := fiber.StatusInternalServerError
	switch {
	case errors.As(err, &badRequest), errors.Is(err, ErrInvalidTimeRange):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrKPINotFound):
		status = fiber.StatusNotFound
	case elastic.IsTransportError(err):
		status = fiber.StatusServiceUnavailable
	case errors.As(err, &configErr):
		status = fiber.StatusUnprocessableEntity
	}
	return ctx.Status(status).JSON(common_models.ErrorResponse{Error: err.Error()})
}
