package rembg

import (
	"context"
	"image"
)

type Remover interface {
	Remove(ctx context.Context, img image.Image) (*image.NRGBA, error)
}

// StageError 标记失败发生在哪一步，worker 用它给任务错误分类
type StageError struct {
	Stage string
	Err   error
}

const (
	StageLoadImage  = "LoadImage"
	StagePreprocess = "Preprocess"
	StageInference  = "Inference"
	StageDraw       = "Draw"
)

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) ErrorName() string {
	return e.Stage + "Error"
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
