package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feizhen/virtual-try-on/internal/cache"
	"github.com/feizhen/virtual-try-on/internal/executor"
	"github.com/feizhen/virtual-try-on/internal/generate"
	"github.com/feizhen/virtual-try-on/internal/imagecodec"
	"github.com/feizhen/virtual-try-on/internal/metrics"
	"github.com/feizhen/virtual-try-on/internal/remote"
	"github.com/feizhen/virtual-try-on/internal/storage"

	_ "github.com/feizhen/virtual-try-on/internal/operation/recolor"
	_ "github.com/feizhen/virtual-try-on/internal/operation/tryon"
)

type testApp struct {
	*fiber.App
	calls   *atomic.Int32
	metrics *metrics.Metrics
}

type appConfig struct {
	generate func(context.Context, remote.Request) ([]byte, error)
	results  storage.Store
}

func encodePNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := imagecodec.New().Encode(img)
	require.NoError(t, err)
	return data
}

func newTestApp(t *testing.T, cfg appConfig) *testApp {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	calls := &atomic.Int32{}
	gen := remote.GeneratorFunc(func(ctx context.Context, req remote.Request) ([]byte, error) {
		calls.Add(1)
		return cfg.generate(ctx, req)
	})

	c, err := cache.New(4)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry(), metrics.Options{Namespace: "test"})
	svc, err := generate.NewService(generate.Dependencies{
		Cache:     c,
		Pool:      executor.NewPool(2),
		Generator: gen,
		Logger:    logger,
		Metrics:   m,
	}, generate.Options{MinTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	app, err := NewApp(AppOptions{
		Logger:  logger,
		Service: svc,
		Results: cfg.results,
		Metrics: m,
	})
	require.NoError(t, err)
	return &testApp{App: app, calls: calls, metrics: m}
}

type formPart struct {
	name string
	file []byte
	text string
}

func multipartRequest(t *testing.T, path string, parts ...formPart) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, p := range parts {
		if p.file != nil {
			fw, err := w.CreateFormFile(p.name, p.name+".png")
			require.NoError(t, err)
			_, err = fw.Write(p.file)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, w.WriteField(p.name, p.text))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doRequest(t *testing.T, app *testApp, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeError(t *testing.T, body []byte) errorBody {
	t.Helper()
	var payload errorBody
	require.NoError(t, json.Unmarshal(body, &payload), "body=%s", body)
	return payload
}

func TestRunOperationServesAndCaches(t *testing.T) {
	out := encodePNG(t, color.RGBA{B: 255, A: 255})
	app := newTestApp(t, appConfig{generate: func(context.Context, remote.Request) ([]byte, error) { return out, nil }})

	request := func() *http.Request {
		return multipartRequest(t, "/api/v1/operations/virtual_tryon",
			formPart{name: "model", file: encodePNG(t, color.White)},
			formPart{name: "garment", file: encodePNG(t, color.Black)},
			formPart{name: "seed", text: "7"},
		)
	}

	resp, body := doRequest(t, app, request())
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body=%s", body)
	assert.Equal(t, out, body)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "false", resp.Header.Get("X-Cache-Hit"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Empty(t, resp.Header.Get("X-Result-ID"), "no store configured")

	resp, body = doRequest(t, app, request())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Cache-Hit"))
	assert.Equal(t, out, body)
	assert.EqualValues(t, 1, app.calls.Load())
}

func TestRunOperationAcceptsRepeatedImageField(t *testing.T) {
	var seen remote.Request
	out := encodePNG(t, color.White)
	app := newTestApp(t, appConfig{generate: func(_ context.Context, req remote.Request) ([]byte, error) {
		seen = req
		return out, nil
	}})

	model := encodePNG(t, color.RGBA{R: 255, A: 255})
	garment := encodePNG(t, color.RGBA{G: 255, A: 255})
	resp, body := doRequest(t, app, multipartRequest(t, "/api/v1/operations/VIRTUAL_TRYON",
		formPart{name: "image", file: model},
		formPart{name: "image", file: garment},
	))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body=%s", body)
	require.Len(t, seen.Images, 2)
	assert.Equal(t, model, seen.Images[0].Data, "slot order follows upload order")
	assert.Equal(t, garment, seen.Images[1].Data)
	assert.Nil(t, seen.Seed)
}

func TestRunOperationPassthrough(t *testing.T) {
	app := newTestApp(t, appConfig{generate: func(context.Context, remote.Request) ([]byte, error) {
		return nil, errors.New("must not be called")
	}})

	src := encodePNG(t, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	resp, body := doRequest(t, app, multipartRequest(t, "/api/v1/operations/advanced_recolor",
		formPart{name: "source", file: src},
		formPart{name: "top", text: "true"},
	))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body=%s", body)
	assert.Equal(t, "true", resp.Header.Get("X-Passthrough"))
	assert.Equal(t, src, body)
	assert.Zero(t, app.calls.Load())
}

func TestRunOperationErrors(t *testing.T) {
	img := encodePNG(t, color.White)
	cases := []struct {
		name     string
		generate func(context.Context, remote.Request) ([]byte, error)
		req      func(t *testing.T) *http.Request
		status   int
		code     string
	}{
		{
			name: "unknown operation",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/face_swap", formPart{name: "image", file: img})
			},
			status: fiber.StatusNotFound,
			code:   "operation_not_found",
		},
		{
			name: "missing garment",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/virtual_tryon", formPart{name: "model", file: img})
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "too many images",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "image", file: img}, formPart{name: "image", file: img})
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "not an image",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor", formPart{name: "source", file: []byte("nope")})
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "bad seed",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "source", file: img}, formPart{name: "seed", text: "abc"})
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "nan timeout",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "source", file: img}, formPart{name: "timeout", text: "NaN"})
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "infinite heartbeat",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "source", file: img}, formPart{name: "heartbeat", text: "Inf"})
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "negative timeout",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "source", file: img}, formPart{name: "timeout", text: "-1"})
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/operations/advanced_recolor", bytes.NewReader([]byte("{}")))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status: fiber.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "generator failure",
			generate: func(context.Context, remote.Request) ([]byte, error) {
				return nil, errors.New("quota exceeded")
			},
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "source", file: img}, formPart{name: "color", text: "red"})
			},
			status: fiber.StatusBadGateway,
			code:   "generation_failed",
		},
		{
			name: "generator not configured",
			generate: func(context.Context, remote.Request) ([]byte, error) {
				return nil, remote.ErrNotConfigured
			},
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "source", file: img}, formPart{name: "color", text: "red"})
			},
			status: fiber.StatusServiceUnavailable,
			code:   "generator_not_configured",
		},
		{
			name: "timeout",
			generate: func(context.Context, remote.Request) ([]byte, error) {
				time.Sleep(500 * time.Millisecond)
				return img, nil
			},
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/operations/advanced_recolor",
					formPart{name: "source", file: img},
					formPart{name: "color", text: "red"},
					formPart{name: "timeout", text: "0.05"},
				)
			},
			status: fiber.StatusGatewayTimeout,
			code:   "timeout",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := tc.generate
			if gen == nil {
				gen = func(context.Context, remote.Request) ([]byte, error) { return img, nil }
			}
			app := newTestApp(t, appConfig{generate: gen})
			resp, body := doRequest(t, app, tc.req(t))
			assert.Equal(t, tc.status, resp.StatusCode, "body=%s", body)
			assert.Equal(t, tc.code, decodeError(t, body).Error)
		})
	}
}

func TestRunOperationClampsHugeDurations(t *testing.T) {
	out := encodePNG(t, color.RGBA{R: 200, A: 255})
	app := newTestApp(t, appConfig{generate: func(_ context.Context, req remote.Request) ([]byte, error) {
		assert.Equal(t, generate.DefaultMaxTimeout, req.Timeout)
		return out, nil
	}})

	for _, raw := range []string{"1e11", "1e300", "1e400"} {
		resp, body := doRequest(t, app, multipartRequest(t, "/api/v1/operations/advanced_recolor",
			formPart{name: "source", file: encodePNG(t, color.White)},
			formPart{name: "color", text: "red"},
			formPart{name: "timeout", text: raw},
			formPart{name: "heartbeat", text: raw},
		))
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "timeout=%s body=%s", raw, body)
		assert.Equal(t, out, body)
	}
}

func TestParseSeconds(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "1.5", want: 1500 * time.Millisecond},
		{raw: "0", want: 0},
		{raw: "1e300", want: time.Duration(math.MaxInt64)},
		{raw: "1e400", want: time.Duration(math.MaxInt64)},
		{raw: "NaN", wantErr: true},
		{raw: "Inf", wantErr: true},
		{raw: "-Inf", wantErr: true},
		{raw: "-2", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseSeconds(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestResultsAreStoredAndDownloadable(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	out := encodePNG(t, color.RGBA{G: 128, A: 255})
	app := newTestApp(t, appConfig{
		generate: func(context.Context, remote.Request) ([]byte, error) { return out, nil },
		results:  store,
	})

	resp, _ := doRequest(t, app, multipartRequest(t, "/api/v1/operations/advanced_recolor",
		formPart{name: "source", file: encodePNG(t, color.White)},
		formPart{name: "color", text: "#00ff00"},
	))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	id := resp.Header.Get("X-Result-ID")
	require.NotEmpty(t, id)
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.Stored.WithLabelValues("ok")))

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/results/"+id, nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, out, body)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, body = doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/results/not-a-uuid", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_result_id", decodeError(t, body).Error)

	resp, body = doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/results/"+storage.NewResultID(), nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "result_not_found", decodeError(t, body).Error)
}

func TestCacheHitReusesStoredResult(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	out := encodePNG(t, color.RGBA{R: 90, A: 255})
	app := newTestApp(t, appConfig{
		generate: func(context.Context, remote.Request) ([]byte, error) { return out, nil },
		results:  store,
	})

	request := func(seed string) *http.Request {
		return multipartRequest(t, "/api/v1/operations/advanced_recolor",
			formPart{name: "source", file: encodePNG(t, color.White)},
			formPart{name: "color", text: "red"},
			formPart{name: "seed", text: seed},
		)
	}
	stored := func() float64 { return testutil.ToFloat64(app.metrics.Stored.WithLabelValues("ok")) }

	resp, _ := doRequest(t, app, request("11"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	first := resp.Header.Get("X-Result-ID")
	require.NotEmpty(t, first)

	resp, _ = doRequest(t, app, request("11"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Cache-Hit"))
	assert.Equal(t, first, resp.Header.Get("X-Result-ID"), "cache hit reuses the stored object")
	assert.Equal(t, 1.0, stored())

	resp, _ = doRequest(t, app, httptest.NewRequest(http.MethodDelete, "/api/v1/results/"+first, nil))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp, _ = doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/results/"+first, nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, app, request("11"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Cache-Hit"))
	second := resp.Header.Get("X-Result-ID")
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second, "removed objects are stored again")
	assert.Equal(t, 2.0, stored())

	// seed 0 每次都是新的生成结果，各自存储。
	resp, _ = doRequest(t, app, request("0"))
	a := resp.Header.Get("X-Result-ID")
	resp, _ = doRequest(t, app, request("0"))
	b := resp.Header.Get("X-Result-ID")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 4.0, stored())
}

func TestDeleteResult(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	app := newTestApp(t, appConfig{
		generate: func(context.Context, remote.Request) ([]byte, error) { return nil, nil },
		results:  store,
	})

	resp, _ := doRequest(t, app, httptest.NewRequest(http.MethodDelete, "/api/v1/results/"+storage.NewResultID(), nil))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode, "missing results delete cleanly")

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodDelete, "/api/v1/results/not-a-uuid", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_result_id", decodeError(t, body).Error)

	disabled := newTestApp(t, appConfig{generate: func(context.Context, remote.Request) ([]byte, error) { return nil, nil }})
	resp, body = doRequest(t, disabled, httptest.NewRequest(http.MethodDelete, "/api/v1/results/"+storage.NewResultID(), nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "storage_disabled", decodeError(t, body).Error)
}

func TestResultIndexForget(t *testing.T) {
	index, err := newResultIndex(2)
	require.NoError(t, err)
	index.remember("k1", "id-a")
	index.remember("k2", "id-a")
	index.remember("k3", "id-b")

	_, ok := index.lookup("k1")
	assert.False(t, ok, "oldest entry evicted at capacity")

	index.forget("id-a")
	_, ok = index.lookup("k2")
	assert.False(t, ok)
	id, ok := index.lookup("k3")
	require.True(t, ok)
	assert.Equal(t, "id-b", id)
}

func TestResultsWithoutStorage(t *testing.T) {
	app := newTestApp(t, appConfig{generate: func(context.Context, remote.Request) ([]byte, error) { return nil, nil }})
	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/results/"+storage.NewResultID(), nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "storage_disabled", decodeError(t, body).Error)
}

func TestRequestIDPropagation(t *testing.T) {
	app := newTestApp(t, appConfig{generate: func(context.Context, remote.Request) ([]byte, error) { return nil, nil }})

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, body := doRequest(t, app, req)
	assert.Equal(t, "trace-123", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "route_not_found", decodeError(t, body).Error)
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New()}); err == nil {
		t.Fatalf("expected error without service")
	}
}
