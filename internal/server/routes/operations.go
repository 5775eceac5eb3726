package routes

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feizhen/virtual-try-on/internal/operation"
)

// CacheReporter 提供缓存与执行器的运行时状态，*generate.Service 满足该接口。
type CacheReporter interface {
	CacheStats() (entries, capacity int)
	InFlight() int64
}

// GeneratorStatus 描述生成后端的健康信息，*gemini.Client 满足该接口。
type GeneratorStatus interface {
	Configured() bool
	Model() string
	BreakerState() string
}

// EnabledFunc 报告操作是否启用，通常为 (*config.Config).OperationEnabled。
type EnabledFunc func(key string) bool

// Diagnostics 汇总诊断接口的依赖，均为可选。
type Diagnostics struct {
	Cache     CacheReporter
	Generator GeneratorStatus
	Gatherer  prometheus.Gatherer
	Enabled   EnabledFunc
	Version   string
}

// RegisterDiagnosticsRoutes 暴露 /-/operations、/-/metrics 与 /-/healthz 诊断接口。
func RegisterDiagnosticsRoutes(app *fiber.App, diag Diagnostics) {
	if app == nil {
		return
	}

	app.Get("/-/operations", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"operations": encodeOperations(operation.List(), diag.Enabled),
		}
		if diag.Cache != nil {
			payload["cache"] = encodeCache(diag.Cache)
		}
		return c.JSON(payload)
	})

	app.Get("/-/operations/:key", func(c fiber.Ctx) error {
		key := strings.ToLower(strings.TrimSpace(c.Params("key")))
		def, ok := operation.Resolve(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "operation_not_found"})
		}
		return c.JSON(encodeOperation(def, diag.Enabled))
	})

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		payload := fiber.Map{"status": "ok"}
		if diag.Version != "" {
			payload["version"] = diag.Version
		}
		if diag.Generator != nil {
			payload["generator"] = fiber.Map{
				"configured": diag.Generator.Configured(),
				"model":      diag.Generator.Model(),
				"breaker":    diag.Generator.BreakerState(),
			}
		}
		if diag.Cache != nil {
			payload["cache"] = encodeCache(diag.Cache)
		}
		return c.JSON(payload)
	})

	if diag.Gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(diag.Gatherer, promhttp.HandlerOpts{})))
	}
}

type operationPayload struct {
	Key         string         `json:"key"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	ImageSlots  []string       `json:"image_slots"`
	Params      []paramPayload `json:"params,omitempty"`
	Enabled     bool           `json:"enabled"`
}

type paramPayload struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

type cachePayload struct {
	Entries  int   `json:"entries"`
	Capacity int   `json:"capacity"`
	InFlight int64 `json:"in_flight"`
}

func encodeCache(reporter CacheReporter) cachePayload {
	entries, capacity := reporter.CacheStats()
	return cachePayload{Entries: entries, Capacity: capacity, InFlight: reporter.InFlight()}
}

func encodeOperations(defs []operation.Definition, enabled EnabledFunc) []operationPayload {
	if len(defs) == 0 {
		return nil
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Key < defs[j].Key
	})
	result := make([]operationPayload, 0, len(defs))
	for _, def := range defs {
		result = append(result, encodeOperation(def, enabled))
	}
	return result
}

func encodeOperation(def operation.Definition, enabled EnabledFunc) operationPayload {
	params := make([]paramPayload, 0, len(def.Params))
	for _, p := range def.Params {
		params = append(params, paramPayload{
			Name:        p.Name,
			Kind:        string(p.Kind),
			Default:     p.Default,
			Description: p.Description,
		})
	}
	return operationPayload{
		Key:         def.Key,
		Description: def.Description,
		Category:    string(def.Category),
		ImageSlots:  append([]string(nil), def.ImageSlots...),
		Params:      params,
		Enabled:     enabled == nil || enabled(def.Key),
	}
}
