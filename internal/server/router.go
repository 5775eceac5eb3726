package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/feizhen/virtual-try-on/internal/generate"
	"github.com/feizhen/virtual-try-on/internal/imagecodec"
	"github.com/feizhen/virtual-try-on/internal/metrics"
	"github.com/feizhen/virtual-try-on/internal/storage"
)

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger  *logrus.Logger
	Service *generate.Service
	// Results 为空表示不持久化生成结果。
	Results storage.Store
	Metrics *metrics.Metrics
	// BodyLimit 限制上传大小（字节），<= 0 时使用 Fiber 默认值。
	BodyLimit int
}

const (
	contextKeyRequestID = "_tryonhub_request_id"
	headerRequestID     = "X-Request-ID"
	maxRequestIDLength  = 128
)

// NewApp builds a Fiber application with request-id middleware, panic
// recovery, JSON error rendering and the /api/v1 routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Service == nil {
		return nil, errors.New("generate service is required")
	}

	cfg := fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts.Logger),
	}
	if opts.BodyLimit > 0 {
		cfg.BodyLimit = opts.BodyLimit
	}
	app := fiber.New(cfg)

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	_, capacity := opts.Service.CacheStats()
	index, err := newResultIndex(capacity)
	if err != nil {
		return nil, fmt.Errorf("result index: %w", err)
	}

	h := &operationHandler{
		logger:  opts.Logger,
		service: opts.Service,
		results: opts.Results,
		index:   index,
		metrics: opts.Metrics,
		codec:   imagecodec.New(),
	}
	api := app.Group("/api/v1")
	api.Post("/operations/:key", h.run)
	api.Get("/results/:id", h.result)
	api.Delete("/results/:id", h.remove)

	return app, nil
}

// requestContextMiddleware 负责生成或透传请求 ID，并回写到响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get(headerRequestID))
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set(headerRequestID, reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
