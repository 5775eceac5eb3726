package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/feizhen/virtual-try-on/internal/generate"
	"github.com/feizhen/virtual-try-on/internal/imagecodec"
	"github.com/feizhen/virtual-try-on/internal/metrics"
	"github.com/feizhen/virtual-try-on/internal/operation"
	"github.com/feizhen/virtual-try-on/internal/storage"
)

// 保留的表单字段，其余字段作为操作参数传入。
const (
	fieldSeed      = "seed"
	fieldTimeout   = "timeout"
	fieldHeartbeat = "heartbeat"
	fieldImage     = "image"
)

type operationHandler struct {
	logger  *logrus.Logger
	service *generate.Service
	results storage.Store
	index   *resultIndex
	metrics *metrics.Metrics
	codec   *imagecodec.Codec
}

// run 处理 POST /api/v1/operations/:key。
func (h *operationHandler) run(c fiber.Ctx) error {
	key := strings.ToLower(strings.TrimSpace(c.Params("key")))
	def, ok := operation.Resolve(key)
	if !ok {
		return renderError(c, fmt.Errorf("%w: %s", generate.ErrUnknownOperation, key))
	}

	form, err := c.MultipartForm()
	if err != nil {
		return renderError(c, &generate.InputError{Field: "body", Reason: "multipart/form-data required"})
	}

	req, err := h.buildRequest(def, form)
	if err != nil {
		return renderError(c, err)
	}
	req.RequestID = RequestID(c)

	result, err := h.service.Run(c.Context(), req)
	if err != nil {
		return renderError(c, err)
	}

	if id := h.persist(c, req, result); id != "" {
		c.Set("X-Result-ID", id)
	}
	c.Set("X-Cache-Hit", strconv.FormatBool(result.CacheHit))
	c.Set("X-Passthrough", strconv.FormatBool(result.Passthrough))
	c.Set(fiber.HeaderContentType, result.ContentType)
	return c.Status(fiber.StatusOK).Send(result.Image)
}

// result 处理 GET /api/v1/results/:id。
func (h *operationHandler) result(c fiber.Ctx) error {
	if h.results == nil {
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: "storage_disabled"})
	}
	key, err := storage.ResultKey(c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	res, err := h.results.Get(c.Context(), key)
	if err != nil {
		return renderError(c, err)
	}
	c.Set(fiber.HeaderContentType, res.Object.ContentType)
	if res.Object.SizeBytes > 0 {
		return c.SendStream(res.Reader, int(res.Object.SizeBytes))
	}
	return c.SendStream(res.Reader)
}

// remove 处理 DELETE /api/v1/results/:id，对象不存在时同样返回 204。
func (h *operationHandler) remove(c fiber.Ctx) error {
	if h.results == nil {
		return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: "storage_disabled"})
	}
	id := c.Params("id")
	key, err := storage.ResultKey(id)
	if err != nil {
		return renderError(c, err)
	}
	if err := h.results.Remove(c.Context(), key); err != nil {
		return renderError(c, err)
	}
	h.index.forget(resultIDFromKey(key))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *operationHandler) buildRequest(def operation.Definition, form *multipart.Form) (generate.Request, error) {
	req := generate.Request{
		Operation: def.Key,
		Params:    operation.Params{},
	}

	files, err := slotFiles(def, form)
	if err != nil {
		return req, err
	}
	req.Images = make([]image.Image, len(files))
	for i, fh := range files {
		if fh == nil {
			continue
		}
		img, err := h.decodeUpload(fh)
		if err != nil {
			return req, &generate.InputError{Field: def.ImageSlots[i], Reason: err.Error()}
		}
		req.Images[i] = img
	}

	for name, values := range form.Value {
		if len(values) == 0 {
			continue
		}
		value := strings.TrimSpace(values[0])
		switch strings.ToLower(name) {
		case fieldSeed:
			if value == "" {
				continue
			}
			seed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return req, &generate.InputError{Field: fieldSeed, Reason: "must be an integer"}
			}
			req.Seed = seed
		case fieldTimeout:
			if value == "" {
				continue
			}
			d, err := parseSeconds(value)
			if err != nil {
				return req, &generate.InputError{Field: fieldTimeout, Reason: err.Error()}
			}
			req.Timeout = d
		case fieldHeartbeat:
			if value == "" {
				continue
			}
			d, err := parseSeconds(value)
			if err != nil {
				return req, &generate.InputError{Field: fieldHeartbeat, Reason: err.Error()}
			}
			req.Heartbeat = &d
		default:
			req.Params[name] = value
		}
	}
	return req, nil
}

// slotFiles 按槽位顺序取出上传文件：优先使用槽位同名字段，其余槽位依次取重复的 image 字段。
func slotFiles(def operation.Definition, form *multipart.Form) ([]*multipart.FileHeader, error) {
	generic := form.File[fieldImage]
	out := make([]*multipart.FileHeader, len(def.ImageSlots))
	next := 0
	for i, slot := range def.ImageSlots {
		if named := form.File[slot]; len(named) > 0 {
			out[i] = named[0]
			continue
		}
		if next < len(generic) {
			out[i] = generic[next]
			next++
		}
	}
	if next < len(generic) {
		return nil, &generate.InputError{
			Field:  fieldImage,
			Reason: fmt.Sprintf("operation %s accepts %d image(s)", def.Key, len(def.ImageSlots)),
		}
	}
	return out, nil
}

func (h *operationHandler) decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return h.codec.Decode(data)
}

// persist 把生成结果写入存储，失败只记录日志，不影响响应。
// 可缓存的结果（seed > 0）按缓存键登记 ID，缓存命中时直接复用已存储的对象。
func (h *operationHandler) persist(c fiber.Ctx, req generate.Request, result *generate.Result) string {
	if h.results == nil || result.Passthrough {
		return ""
	}
	cacheable := req.Seed > 0 && result.CacheKey != ""
	if cacheable && result.CacheHit {
		if id, ok := h.index.lookup(result.CacheKey); ok {
			return id
		}
	}

	id := storage.NewResultID()
	key, err := storage.ResultKey(id)
	if err != nil {
		return ""
	}
	_, err = h.results.Put(c.Context(), key, bytes.NewReader(result.Image), storage.PutOptions{
		ContentType: result.ContentType,
		Size:        int64(len(result.Image)),
	})
	h.metrics.ResultStored(err == nil)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"action":     "store_result",
			"operation":  result.Operation,
			"request_id": RequestID(c),
			"key":        key,
		}).WithError(err).Warn("failed to persist result")
		return ""
	}
	if cacheable {
		h.index.remember(result.CacheKey, id)
	}
	return id
}

func resultIDFromKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, "results/"), ".png")
}

// maxSeconds 是 time.Duration 能表示的最大秒数。
var maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// parseSeconds 解析以秒为单位的数值；超出 time.Duration 范围的正数饱和为最大值，
// 交由服务端夹取。
func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, errors.New("must be a number of seconds")
	}
	if math.IsNaN(seconds) || (err == nil && math.IsInf(seconds, 0)) {
		return 0, errors.New("must be a finite number of seconds")
	}
	if seconds < 0 {
		return 0, errors.New("must not be negative")
	}
	if seconds >= maxSeconds {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
