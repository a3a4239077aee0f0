package api

import (
	"bytes"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"bikedash/internal/engine"
	"bikedash/internal/export"
	"bikedash/internal/logging"
	"bikedash/internal/metrics"
	"bikedash/internal/models"
	"bikedash/internal/render"
	"bikedash/internal/session"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	defaultRowLimit = 100
	maxRowLimit     = 1000

	mimeSVG   = "image/svg+xml"
	mimeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeArrow = "application/vnd.apache.arrow.stream"
)

type Handler struct {
	eng      *engine.Engine
	sessions *session.Manager
	metrics  *metrics.Metrics
	validate *validator.Validate
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(eng *engine.Engine, sessions *session.Manager, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		eng:      eng,
		sessions: sessions,
		metrics:  m,
		validate: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logging.Component(logger, "api"),
	}
}

// AllowOrigins restricts websocket upgrades to the given origins. "*"
// allows any origin.
func (h *Handler) AllowOrigins(origins []string) {
	for _, o := range origins {
		if o == "*" {
			h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/healthz", h.Health)
	api.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	api.GET("/dataset", h.GetDataset)
	api.GET("/overview", h.GetOverview)

	s := api.Group("/sessions")
	s.POST("", h.CreateSession)
	s.GET("/:id", h.GetSession)
	s.PATCH("/:id", h.UpdateSession)
	s.DELETE("/:id", h.DeleteSession)
	s.PUT("/:id/x", h.SetX)
	s.PUT("/:id/y", h.SetY)
	s.PUT("/:id/range", h.SetRange)
	s.PUT("/:id/plot", h.SetPlot)
	s.GET("/:id/rows", h.GetRows)
	s.GET("/:id/chart.svg", h.GetChartSVG)
	s.GET("/:id/export.xlsx", h.ExportXLSX)
	s.GET("/:id/export.arrow", h.ExportArrow)
	s.GET("/:id/ws", h.Stream)
}

// --- REQUESTS ---

type createRequest struct {
	Variant int `json:"variant" validate:"required,oneof=1 2"`
}

type columnRequest struct {
	Column string `json:"column" validate:"required"`
}

type rangeRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

type plotRequest struct {
	PlotType string `json:"plot_type" validate:"required,oneof=distribution bar scatterplot line"`
}

func (h *Handler) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return h.validate.Struct(req)
}

func (r rangeRequest) days() (models.Day, models.Day, error) {
	start, err := models.ParseDay(r.Start)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := models.ParseDay(r.End)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return start, end, nil
}

// --- HANDLERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxRowLimit {
		limit = maxRowLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// session looks up the :id session and marks it active.
func (h *Handler) session(c echo.Context) (*session.Session, error) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return nil, err
	}
	s.Touch()
	return s, nil
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"rows":     h.eng.Store().Len(),
		"sessions": h.sessions.Len(),
	})
}

func (h *Handler) GetDataset(c echo.Context) error {
	return c.JSON(http.StatusOK, h.eng.Info())
}

// overview over the whole dataset, or over ?from=&to= when given
func (h *Handler) GetOverview(c echo.Context) error {
	store := h.eng.Store()
	view := store.Full()
	if c.QueryParam("from") != "" || c.QueryParam("to") != "" {
		start, end := store.Start(), store.End()
		var err error
		if v := c.QueryParam("from"); v != "" {
			if start, err = models.ParseDay(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		if v := c.QueryParam("to"); v != "" {
			if end, err = models.ParseDay(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		view = store.Filter(start, end)
	}

	overview, err := view.Overview(h.eng.Response())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overview)
}

func (h *Handler) CreateSession(c echo.Context) error {
	var req createRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	_, r, err := h.sessions.Create(models.Variant(req.Variant))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	r, ok := s.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session has not rendered yet")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var u models.Update
	if err := h.bind(c, &u); err != nil {
		return err
	}
	if u.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "update sets no fields")
	}
	r, err := s.Apply(u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetX(c echo.Context) error {
	return h.setColumn(c, (*session.Session).SetX)
}

func (h *Handler) SetY(c echo.Context) error {
	return h.setColumn(c, (*session.Session).SetY)
}

func (h *Handler) setColumn(c echo.Context, set func(*session.Session, string) (models.Render, error)) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req columnRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	r, err := set(s, req.Column)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) SetRange(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req rangeRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	start, end, err := req.days()
	if err != nil {
		return err
	}
	r, err := s.SetDateRange(start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) SetPlot(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req plotRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	r, err := s.SetPlotType(models.PlotType(req.PlotType))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetRows(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	limit, offset := getPaginationParams(c, defaultRowLimit)
	return c.JSON(http.StatusOK, s.View().Rows(offset, limit))
}

func (h *Handler) GetChartSVG(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	r, ok := s.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session has not rendered yet")
	}
	var buf bytes.Buffer
	if err := render.WriteSVG(&buf, r.Chart, render.DefaultWidth, render.DefaultHeight); err != nil {
		return err
	}
	return c.Blob(http.StatusOK, mimeSVG, buf.Bytes())
}

func (h *Handler) ExportXLSX(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	r, ok := s.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session has not rendered yet")
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, s.View(), r.Selection, r.Summary); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="bikedash.xlsx"`)
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

func (h *Handler) ExportArrow(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.WriteArrow(&buf, s.View()); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="bikedash.arrow"`)
	return c.Blob(http.StatusOK, mimeArrow, buf.Bytes())
}
