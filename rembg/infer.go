package rembg

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	nhttp "github.com/chaos-io/removebg/util/http"
)

const (
	inputName  = "input"
	outputName = "output"
	fp32       = "FP32"
)

// InferenceModel 通过 HTTP 调用远端推理服务（KServe v2 / Triton 推理协议）
type InferenceModel struct {
	baseURL string
	name    string
	timeout time.Duration
	cli     nhttp.IClient
}

func NewInferenceModel(cli nhttp.IClient, baseURL, name string, timeout time.Duration) *InferenceModel {
	return &InferenceModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		timeout: timeout,
		cli:     cli,
	}
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferOutput struct {
	Name string `json:"name"`
}

type inferRequest struct {
	Inputs  []inferTensor `json:"inputs"`
	Outputs []inferOutput `json:"outputs,omitempty"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

func (m *InferenceModel) modelURL(suffix string) string {
	return fmt.Sprintf("%s/v2/models/%s/%s", m.baseURL, url.PathEscape(m.name), suffix)
}

// Live 检查推理服务是否可用，用于启动时的环境检查
func (m *InferenceModel) Live(ctx context.Context) error {
	err := m.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: m.baseURL + "/v2/health/ready",
		Method:     http.MethodGet,
		Timeout:    m.timeout,
	})
	if err != nil {
		return fmt.Errorf("inference server not ready: %w", err)
	}
	return nil
}

// Ready 检查模型已加载
func (m *InferenceModel) Ready(ctx context.Context) error {
	err := m.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: m.modelURL("ready"),
		Method:     http.MethodGet,
		Timeout:    m.timeout,
	})
	if err != nil {
		return fmt.Errorf("model %s not ready: %w", m.name, err)
	}
	return nil
}

func (m *InferenceModel) Predict(ctx context.Context, input Tensor) (Tensor, error) {
	if err := input.validate(); err != nil {
		return Tensor{}, err
	}

	resp := &inferResponse{}
	err := m.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: m.modelURL("infer"),
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": "application/json"},
		Body: inferRequest{
			Inputs:  []inferTensor{{Name: inputName, Shape: input.Shape, Datatype: fp32, Data: input.Data}},
			Outputs: []inferOutput{{Name: outputName}},
		},
		Response: resp,
		Timeout:  m.timeout,
	})
	if err != nil {
		return Tensor{}, fmt.Errorf("do request: %w", err)
	}

	for _, out := range resp.Outputs {
		if out.Name != outputName && len(resp.Outputs) > 1 {
			continue
		}
		if out.Datatype != "" && out.Datatype != fp32 {
			return Tensor{}, fmt.Errorf("unsupported output datatype %s", out.Datatype)
		}
		t := Tensor{Shape: out.Shape, Data: out.Data}
		if err := t.validate(); err != nil {
			return Tensor{}, err
		}
		return t, nil
	}
	return Tensor{}, fmt.Errorf("model %s returned no %q output", m.name, outputName)
}
