package rembg

import (
	"context"
	"fmt"
)

const RMBGModel = "briaai/RMBG-1.4"

// Tensor 行优先的 float32 张量
type Tensor struct {
	Shape []int
	Data  []float32
}

func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) validate() error {
	if len(t.Shape) == 0 || t.Size() != len(t.Data) {
		return fmt.Errorf("tensor shape %v does not match %d values", t.Shape, len(t.Data))
	}
	return nil
}

// Model 外部分割模型：输入 [1,3,H,W] 归一化像素，输出 [1,1,H,W] 的 0~1 掩码
type Model interface {
	Ready(ctx context.Context) error
	Predict(ctx context.Context, input Tensor) (Tensor, error)
}

// ProcessorConfig 预处理参数
type ProcessorConfig struct {
	Width, Height int
	RescaleFactor float32
	Mean          [3]float32
	Std           [3]float32
}

// DefaultProcessorConfig RMBG-1.4 的 preprocessor_config：
// 缩放到 1024x1024（不补边）、双线性、像素 /255、mean 0.5、std 1
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Width:         1024,
		Height:        1024,
		RescaleFactor: 1.0 / 255,
		Mean:          [3]float32{0.5, 0.5, 0.5},
		Std:           [3]float32{1, 1, 1},
	}
}
