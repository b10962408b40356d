package rembg

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Preprocess 把图片变成模型输入：缩放到固定尺寸，rescale 后按 mean/std 归一化，CHW 排列
func Preprocess(img *image.NRGBA, cfg ProcessorConfig) Tensor {
	resized := image.NewNRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := cfg.Width * cfg.Height
	data := make([]float32, 3*plane)
	for y := 0; y < cfg.Height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < cfg.Width; x++ {
			i := y*cfg.Width + x
			for c := 0; c < 3; c++ {
				v := float32(row[x*4+c]) * cfg.RescaleFactor
				data[c*plane+i] = (v - cfg.Mean[c]) / cfg.Std[c]
			}
		}
	}

	return Tensor{Shape: []int{1, 3, cfg.Height, cfg.Width}, Data: data}
}

// MaskFromTensor 模型输出 ×255 转 uint8，再缩放回原图尺寸
func MaskFromTensor(out Tensor, width, height int) (*image.Gray, error) {
	if err := out.validate(); err != nil {
		return nil, err
	}
	if len(out.Shape) < 2 {
		return nil, fmt.Errorf("mask tensor needs height and width, got shape %v", out.Shape)
	}
	h, w := out.Shape[len(out.Shape)-2], out.Shape[len(out.Shape)-1]
	if w*h != len(out.Data) {
		return nil, fmt.Errorf("mask tensor must have a single channel, got shape %v", out.Shape)
	}

	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range out.Data {
		mask.Pix[i] = clampByte(v * 255)
	}

	if w == width && h == height {
		return mask, nil
	}
	return toGray(resize.Resize(uint(width), uint(height), mask, resize.Bilinear)), nil
}

// applyAlpha 把掩码写进原图像素的 alpha 通道
func applyAlpha(dst *image.NRGBA, mask *image.Gray) error {
	if dst.Bounds().Size() != mask.Bounds().Size() {
		return fmt.Errorf("mask %v does not match image %v", mask.Bounds().Size(), dst.Bounds().Size())
	}
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	for y := 0; y < h; y++ {
		drow := dst.Pix[y*dst.Stride:]
		mrow := mask.Pix[y*mask.Stride:]
		for x := 0; x < w; x++ {
			drow[x*4+3] = mrow[x]
		}
	}
	return nil
}

func clampByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok && gray.Bounds().Min == (image.Point{}) {
		return gray
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
