package rembg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chaos-io/removebg/blob"
	"github.com/chaos-io/removebg/task"
	nhttp "github.com/chaos-io/removebg/util/http"
)

// halfMaskModel 左半边前景，右半边背景
type halfMaskModel struct {
	err    error
	inputs []Tensor
}

func (m *halfMaskModel) Ready(context.Context) error { return nil }

func (m *halfMaskModel) Predict(_ context.Context, input Tensor) (Tensor, error) {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return Tensor{}, m.err
	}
	h, w := input.Shape[2], input.Shape[3]
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			data[y*w+x] = 1
		}
	}
	return Tensor{Shape: []int{1, 1, h, w}, Data: data}, nil
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocess(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
		}
	}
	cfg := ProcessorConfig{Width: 8, Height: 8, RescaleFactor: 1.0 / 255, Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{1, 1, 1}}

	got := Preprocess(img, cfg)
	assert.Equal(t, []int{1, 3, 8, 8}, got.Shape)
	require.Len(t, got.Data, 3*64)

	plane := 64
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 0.5, got.Data[i], 0.01, "red plane")
		assert.InDelta(t, -0.5, got.Data[plane+i], 0.01, "green plane")
		assert.InDelta(t, 0.5, got.Data[2*plane+i], 0.01, "blue plane")
	}
}

func TestMaskFromTensor(t *testing.T) {
	mask, err := MaskFromTensor(Tensor{Shape: []int{1, 1, 2, 2}, Data: []float32{0, 0.5, 1, 2}}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 127, 255, 255}, mask.Pix)

	scaled, err := MaskFromTensor(Tensor{Shape: []int{1, 1, 2, 2}, Data: []float32{1, 1, 1, 1}}, 10, 6)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 6), scaled.Bounds())
	assert.Equal(t, uint8(255), scaled.GrayAt(5, 3).Y)

	_, err = MaskFromTensor(Tensor{Shape: []int{1, 2, 2, 2}, Data: make([]float32, 8)}, 2, 2)
	assert.Error(t, err)
	_, err = MaskFromTensor(Tensor{Shape: []int{1, 1, 2, 2}, Data: make([]float32, 3)}, 2, 2)
	assert.Error(t, err)
}

func TestPipeline_RemoveWritesAlpha(t *testing.T) {
	model := &halfMaskModel{}
	p := NewPipeline(model, blob.NewStore(), nhttp.NewHTTPClient(), zaptest.NewLogger(t))

	src := image.NewNRGBA(image.Rect(0, 0, 64, 32))
	for i := range src.Pix {
		src.Pix[i] = 200
	}

	got, err := p.Remove(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), got.Bounds())

	require.Len(t, model.inputs, 1)
	assert.Equal(t, []int{1, 3, 1024, 1024}, model.inputs[0].Shape)

	left, right := got.NRGBAAt(4, 10), got.NRGBAAt(60, 10)
	assert.Equal(t, uint8(255), left.A)
	assert.Equal(t, uint8(0), right.A)
	assert.Equal(t, uint8(200), left.R)
	assert.Equal(t, uint8(200), right.G, "color channels are kept")

	// 原图不被修改
	assert.Equal(t, uint8(200), src.Pix[3])
}

func TestPipeline_RunFromBlob(t *testing.T) {
	blobs := blob.NewStore()
	locator := blobs.Put(blob.Object{Name: "a.png", ContentType: "image/png", Data: solidPNG(t, 30, 10, color.NRGBA{R: 10, G: 20, B: 30, A: 255})})
	p := NewPipeline(&halfMaskModel{}, blobs, nhttp.NewHTTPClient(), zaptest.NewLogger(t))

	surface := task.NewSurface()
	canvas, err := surface.Transfer()
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background(), locator, canvas))
	require.NoError(t, surface.Reclaim())

	img, drawn, err := surface.Image()
	require.NoError(t, err)
	require.True(t, drawn)
	assert.Equal(t, image.Rect(0, 0, 30, 10), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, img.NRGBAAt(2, 5))
	assert.Equal(t, uint8(0), img.NRGBAAt(28, 5).A)
}

func TestPipeline_RunFromURL(t *testing.T) {
	data := solidPNG(t, 16, 16, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer server.Close()

	p := NewPipeline(&halfMaskModel{}, blob.NewStore(), nhttp.NewHTTPClient(), zaptest.NewLogger(t))
	surface := task.NewSurface()
	canvas, err := surface.Transfer()
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background(), server.URL+"/img.png", canvas))
}

func TestPipeline_RunErrors(t *testing.T) {
	blobs := blob.NewStore()
	notImage := blobs.Put(blob.Object{Name: "a.txt", Data: []byte("hello")})
	good := blobs.Put(blob.Object{Name: "a.png", Data: solidPNG(t, 4, 4, color.NRGBA{A: 255})})

	tests := []struct {
		name     string
		source   string
		modelErr error
		wantName string
	}{
		{name: "missing blob", source: "blob:missing", wantName: "LoadImageError"},
		{name: "not an image", source: notImage, wantName: "LoadImageError"},
		{name: "model failure", source: good, modelErr: errors.New("gpu lost"), wantName: "InferenceError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&halfMaskModel{err: tt.modelErr}, blobs, nhttp.NewHTTPClient(), zaptest.NewLogger(t))
			canvas, err := task.NewSurface().Transfer()
			require.NoError(t, err)

			err = p.Run(context.Background(), tt.source, canvas)
			require.Error(t, err)
			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantName, se.ErrorName())
		})
	}
}

func TestInferenceModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/health/ready":
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/ready"):
			assert.Contains(t, r.URL.EscapedPath(), "briaai%2FRMBG-1.4")
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/infer"):
			assert.Equal(t, http.MethodPost, r.Method)
			var req inferRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Inputs, 1)
			assert.Equal(t, "input", req.Inputs[0].Name)
			assert.Equal(t, "FP32", req.Inputs[0].Datatype)
			assert.Equal(t, []int{1, 3, 1, 2}, req.Inputs[0].Shape)

			_ = json.NewEncoder(w).Encode(inferResponse{
				ModelName: RMBGModel,
				Outputs:   []inferTensor{{Name: "output", Shape: []int{1, 1, 1, 2}, Datatype: "FP32", Data: []float32{0.25, 1}}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	m := NewInferenceModel(nhttp.NewHTTPClient(), server.URL+"/", RMBGModel, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, m.Live(ctx))
	require.NoError(t, m.Ready(ctx))

	out, err := m.Predict(ctx, Tensor{Shape: []int{1, 3, 1, 2}, Data: make([]float32, 6)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2}, out.Shape)
	assert.Equal(t, []float32{0.25, 1}, out.Data)

	_, err = m.Predict(ctx, Tensor{Shape: []int{1, 3, 1, 2}, Data: make([]float32, 2)})
	assert.Error(t, err)
}

func TestInferenceModel_NotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	}))
	defer server.Close()

	m := NewInferenceModel(nhttp.NewHTTPClient(), server.URL, RMBGModel, time.Second)
	err := m.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Error(t, m.Live(context.Background()))
}
