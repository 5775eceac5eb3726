// Package generate orchestrates one operation request: fingerprint the inputs,
// consult the result cache, and on a miss run the remote generator on the
// bounded executor while a heartbeat reports progress.
package generate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/feizhen/virtual-try-on/internal/cache"
	"github.com/feizhen/virtual-try-on/internal/executor"
	"github.com/feizhen/virtual-try-on/internal/fingerprint"
	"github.com/feizhen/virtual-try-on/internal/heartbeat"
	"github.com/feizhen/virtual-try-on/internal/imagecodec"
	"github.com/feizhen/virtual-try-on/internal/logging"
	"github.com/feizhen/virtual-try-on/internal/metrics"
	"github.com/feizhen/virtual-try-on/internal/operation"
	"github.com/feizhen/virtual-try-on/internal/remote"
)

// 超时与心跳的默认边界。
const (
	DefaultMinTimeout = 5 * time.Second
	DefaultMaxTimeout = 600 * time.Second
	DefaultTimeout    = 60 * time.Second
	MaxHeartbeat      = 60 * time.Second
)

const fallbackContentType = "application/octet-stream"

// Settings 提供按操作生效的模型、超时与开关，*config.Config 满足该接口。
type Settings interface {
	EffectiveModel(key string) string
	EffectiveTimeout(key string) time.Duration
	OperationEnabled(key string) bool
}

// Dependencies 汇总 Service 需要的协作者。Cache、Pool、Generator 必填。
type Dependencies struct {
	Cache     *cache.Cache
	Pool      *executor.Pool
	Generator remote.Generator
	Codec     *imagecodec.Codec
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Settings  Settings
}

// Options 控制超时夹取范围与默认心跳间隔。超时字段为零时使用包内默认值。
type Options struct {
	MinTimeout time.Duration
	MaxTimeout time.Duration
	// DefaultTimeout 在 Settings 为空时作为请求未指定超时的回退值。
	DefaultTimeout time.Duration
	// Heartbeat 为请求未指定时的心跳间隔，<= 0 表示关闭，超过 MaxHeartbeat 时截断。
	Heartbeat time.Duration
}

// Request 是一次操作调用。Images 按操作声明的槽位顺序排列。
type Request struct {
	Operation string
	Images    []image.Image
	Params    operation.Params
	// Seed 为 0 时不读写缓存，也不向模型固定随机种子。
	Seed int64
	// Timeout 为 0 时使用操作的默认超时。
	Timeout time.Duration
	// Heartbeat 为 nil 时使用默认间隔，指向 0 表示关闭。
	Heartbeat *time.Duration
	RequestID string
}

// Result 是一次成功调用的输出。
type Result struct {
	Operation   string
	Image       []byte
	ContentType string
	CacheKey    string
	CacheHit    bool
	Passthrough bool
	Elapsed     time.Duration
}

// Service 是生成请求的编排入口，整站复用一份实例。
type Service struct {
	cache        *cache.Cache
	pool         *executor.Pool
	generator    remote.Generator
	codec        *imagecodec.Codec
	fingerprints *fingerprint.Builder
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	settings     Settings
	opts         Options
}

// NewService 校验依赖并补齐默认值。
func NewService(deps Dependencies, opts Options) (*Service, error) {
	if deps.Cache == nil {
		return nil, errors.New("generate: cache required")
	}
	if deps.Pool == nil {
		return nil, errors.New("generate: executor pool required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generate: generator required")
	}
	if deps.Codec == nil {
		deps.Codec = imagecodec.New()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	if opts.MinTimeout <= 0 {
		opts.MinTimeout = DefaultMinTimeout
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = DefaultMaxTimeout
	}
	if opts.MaxTimeout < opts.MinTimeout {
		return nil, fmt.Errorf("generate: max timeout %s below min timeout %s", opts.MaxTimeout, opts.MinTimeout)
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.Heartbeat > MaxHeartbeat {
		opts.Heartbeat = MaxHeartbeat
	}

	return &Service{
		cache:        deps.Cache,
		pool:         deps.Pool,
		generator:    deps.Generator,
		codec:        deps.Codec,
		fingerprints: fingerprint.NewBuilder(deps.Codec),
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		settings:     deps.Settings,
		opts:         opts,
	}, nil
}

// CacheStats 返回缓存当前条目数与容量。
func (s *Service) CacheStats() (entries, capacity int) {
	return s.cache.Len(), s.cache.Capacity()
}

// InFlight 返回仍占用执行槽位的任务数，包括已被放弃的任务。
func (s *Service) InFlight() int64 {
	return s.pool.InFlight()
}

// Run 执行一次操作请求。
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	def, err := s.resolve(req.Operation)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(def, req); err != nil {
		return nil, err
	}

	plan, err := def.Build(req.Params)
	if err != nil {
		var paramErr operation.ParamError
		if errors.As(err, &paramErr) {
			return nil, &InputError{Field: paramErr.Field, Reason: paramErr.Reason}
		}
		return nil, err
	}

	canonical, err := s.fingerprints.Canonicalize(req.Images)
	if err != nil {
		return nil, inputError("images", "%v", err)
	}

	if plan.Passthrough {
		s.metrics.Generation(def.Key, metrics.OutcomePassthrough, 0)
		result := &Result{
			Operation:   def.Key,
			Image:       canonical[0],
			ContentType: imagecodec.MIMEType,
			Passthrough: true,
			Elapsed:     time.Since(start),
		}
		s.logResult(req, result, metrics.OutcomePassthrough, nil)
		return result, nil
	}

	model := s.model(def.Key)
	digest, err := fingerprint.Digest(canonical, model, plan.Summary)
	if err != nil {
		return nil, inputError("images", "%v", err)
	}
	key := CacheKey(def.Key, digest, plan.Summary, req.Seed)

	if req.Seed > 0 {
		if blob, ok := s.cache.Get(key); ok {
			s.metrics.CacheLookup(def.Key, metrics.LookupHit)
			s.metrics.Generation(def.Key, metrics.OutcomeCached, 0)
			result := &Result{
				Operation:   def.Key,
				Image:       blob,
				ContentType: detectContentType(blob),
				CacheKey:    key,
				CacheHit:    true,
				Elapsed:     time.Since(start),
			}
			s.logResult(req, result, metrics.OutcomeCached, nil)
			return result, nil
		}
		s.metrics.CacheLookup(def.Key, metrics.LookupMiss)
	} else {
		s.metrics.CacheLookup(def.Key, metrics.LookupBypass)
	}

	timeout, err := s.timeout(def.Key, req.Timeout)
	if err != nil {
		return nil, err
	}
	interval, err := s.heartbeatInterval(req.Heartbeat)
	if err != nil {
		return nil, err
	}

	remoteReq := remote.Request{
		Prompt:  plan.Prompt,
		Images:  remoteImages(canonical),
		Model:   model,
		Seed:    seedPointer(req.Seed),
		Timeout: timeout,
	}

	entry := s.logger.WithFields(logging.OperationFields(def.Key, req.RequestID, false))
	beat := heartbeat.Start(interval, heartbeat.Multi(
		logging.HeartbeatSink(entry),
		func(heartbeat.Signal) { s.metrics.HeartbeatTick(def.Key) },
	))
	blob, err := s.pool.Run(ctx, timeout, func(ctx context.Context) ([]byte, error) {
		return s.generator.Generate(ctx, remoteReq)
	})
	beat.Stop()
	elapsed := time.Since(start)

	if err != nil {
		outcome := metrics.OutcomeError
		var timeoutErr *executor.TimeoutError
		if errors.As(err, &timeoutErr) {
			outcome = metrics.OutcomeTimeout
		}
		s.metrics.Generation(def.Key, outcome, elapsed)
		s.logResult(req, &Result{Operation: def.Key, CacheKey: key, Elapsed: elapsed}, outcome, err)
		return nil, err
	}

	if _, decodeErr := s.codec.Decode(blob); decodeErr != nil {
		err = &executor.PropagatedError{Cause: fmt.Errorf("generator returned an undecodable image: %w", decodeErr)}
		s.metrics.Generation(def.Key, metrics.OutcomeError, elapsed)
		s.logResult(req, &Result{Operation: def.Key, CacheKey: key, Elapsed: elapsed}, metrics.OutcomeError, err)
		return nil, err
	}

	if req.Seed > 0 {
		s.cache.Set(key, blob)
	}

	s.metrics.Generation(def.Key, metrics.OutcomeSuccess, elapsed)
	result := &Result{
		Operation:   def.Key,
		Image:       blob,
		ContentType: detectContentType(blob),
		CacheKey:    key,
		Elapsed:     elapsed,
	}
	s.logResult(req, result, metrics.OutcomeSuccess, nil)
	return result, nil
}

// CacheKey 构造 "<op>:<fingerprint>:<summary>:<seed>" 形式的缓存键，summary 为空时省略该段。
func CacheKey(op, digest, summary string, seed int64) string {
	parts := []string{op, digest}
	if summary != "" {
		parts = append(parts, summary)
	}
	parts = append(parts, strconv.FormatInt(seed, 10))
	return strings.Join(parts, ":")
}

func (s *Service) resolve(key string) (operation.Definition, error) {
	def, ok := operation.Resolve(key)
	if !ok {
		return operation.Definition{}, fmt.Errorf("%w: %s", ErrUnknownOperation, key)
	}
	if s.settings != nil && !s.settings.OperationEnabled(def.Key) {
		return operation.Definition{}, fmt.Errorf("%w: %s", ErrOperationDisabled, def.Key)
	}
	return def, nil
}

func (s *Service) model(key string) string {
	if s.settings == nil {
		return ""
	}
	return s.settings.EffectiveModel(key)
}

// timeout 解析请求超时并夹取到 [MinTimeout, MaxTimeout]。
func (s *Service) timeout(key string, requested time.Duration) (time.Duration, error) {
	if requested < 0 {
		return 0, inputError("timeout", "must not be negative")
	}
	if requested == 0 {
		requested = s.opts.DefaultTimeout
		if s.settings != nil {
			if d := s.settings.EffectiveTimeout(key); d > 0 {
				requested = d
			}
		}
	}
	return clamp(requested, s.opts.MinTimeout, s.opts.MaxTimeout), nil
}

func (s *Service) heartbeatInterval(requested *time.Duration) (time.Duration, error) {
	if requested == nil {
		return s.opts.Heartbeat, nil
	}
	if *requested < 0 {
		return 0, inputError("heartbeat", "must not be negative")
	}
	return min(*requested, MaxHeartbeat), nil
}

func (s *Service) logResult(req Request, result *Result, outcome string, err error) {
	fields := logging.OperationFields(result.Operation, req.RequestID, result.CacheHit)
	fields["action"] = "generate"
	fields["outcome"] = outcome
	fields["elapsed_ms"] = result.Elapsed.Milliseconds()
	fields["seed"] = req.Seed
	if result.CacheKey != "" {
		fields["cache_key"] = result.CacheKey
	}
	entry := s.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("generation failed")
		return
	}
	entry.Info("generation completed")
}

func validateRequest(def operation.Definition, req Request) error {
	if req.Seed < 0 {
		return inputError("seed", "must be zero or positive")
	}
	if len(req.Images) > len(def.ImageSlots) {
		return inputError("images", "operation %s accepts %d image(s), got %d", def.Key, len(def.ImageSlots), len(req.Images))
	}
	for i, slot := range def.ImageSlots {
		if i >= len(req.Images) || req.Images[i] == nil {
			return inputError(slot, "image is required")
		}
		if req.Images[i].Bounds().Empty() {
			return inputError(slot, "image is empty")
		}
	}
	return nil
}

func remoteImages(canonical [][]byte) []remote.Image {
	images := make([]remote.Image, len(canonical))
	for i, data := range canonical {
		images[i] = remote.Image{MIMEType: imagecodec.MIMEType, Data: data}
	}
	return images
}

func seedPointer(seed int64) *int64 {
	if seed <= 0 {
		return nil
	}
	return &seed
}

func detectContentType(blob []byte) string {
	ct := http.DetectContentType(blob)
	if !strings.HasPrefix(ct, "image/") {
		return fallbackContentType
	}
	return ct
}

func clamp(d, lo, hi time.Duration) time.Duration {
	return max(lo, min(d, hi))
}
