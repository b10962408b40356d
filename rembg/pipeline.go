package rembg

import (
	"bytes"
	"context"
	"errors"
	"image"

	"go.uber.org/zap"

	"github.com/chaos-io/removebg/blob"
	"github.com/chaos-io/removebg/task"
	"github.com/chaos-io/removebg/util"
	nhttp "github.com/chaos-io/removebg/util/http"
)

// Pipeline 单个任务的完整流程：读图 -> 预处理 -> 推理 -> 掩码缩放 -> 写 alpha -> 画到 canvas
var _ Remover = (*Pipeline)(nil)

type Pipeline struct {
	model  Model
	blobs  *blob.Store
	cli    nhttp.IClient
	cfg    ProcessorConfig
	logger *zap.Logger
}

func NewPipeline(model Model, blobs *blob.Store, cli nhttp.IClient, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		model:  model,
		blobs:  blobs,
		cli:    cli,
		cfg:    DefaultProcessorConfig(),
		logger: logger,
	}
}

func (p *Pipeline) Load(ctx context.Context) error {
	return p.model.Ready(ctx)
}

func (p *Pipeline) Run(ctx context.Context, source string, canvas *task.Canvas) error {
	img, err := p.loadImage(ctx, source)
	if err != nil {
		return stageErr(StageLoadImage, err)
	}

	out, err := p.Remove(ctx, img)
	if err != nil {
		return err
	}

	if err := canvas.Draw(out); err != nil {
		return stageErr(StageDraw, err)
	}
	return nil
}

// Remove 返回原图像素 + 模型掩码作为 alpha 的新图，原图不变
func (p *Pipeline) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	src := toNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, stageErr(StagePreprocess, errors.New("empty image"))
	}

	done := util.Trace("preprocess")
	input := Preprocess(src, p.cfg)
	done()

	done = util.Trace("inference")
	output, err := p.model.Predict(ctx, input)
	done()
	if err != nil {
		return nil, stageErr(StageInference, err)
	}

	done = util.Trace("mask resize")
	mask, err := MaskFromTensor(output, w, h)
	done()
	if err != nil {
		return nil, stageErr(StageInference, err)
	}

	// 先拷贝原图像素，再写 alpha
	result := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(result.Pix[y*result.Stride:y*result.Stride+w*4], src.Pix[y*src.Stride:])
	}
	if err := applyAlpha(result, mask); err != nil {
		return nil, stageErr(StageDraw, err)
	}

	p.logger.Debug("Background removed", zap.Int("width", w), zap.Int("height", h))
	return result, nil
}

func (p *Pipeline) loadImage(ctx context.Context, source string) (*image.NRGBA, error) {
	if blob.IsLocator(source) {
		obj, err := p.blobs.Get(source)
		if err != nil {
			return nil, err
		}
		return util.DecodeImage(bytes.NewReader(obj.Data))
	}
	return util.DownloadImage(ctx, p.cli, source)
}
