package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/user/kshows/internal/metrics"
)

// ErrDimensionMismatch 返回向量维度与配置不一致
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// embeddingRequest Hugging Face feature-extraction 请求结构
type embeddingRequest struct {
	Inputs []string `json:"inputs"`
}

// HuggingFaceClient 调用 Hugging Face 推理接口生成向量
// 每次调用只发一次请求，不缓存、不重试
type HuggingFaceClient struct {
	httpClient *http.Client
	apiURL     string
	token      string
	dimensions int
}

// NewHuggingFaceClient 创建向量客户端
func NewHuggingFaceClient(apiURL, token string, dimensions int, timeout time.Duration) *HuggingFaceClient {
	return &HuggingFaceClient{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		token:      token,
		dimensions: dimensions,
	}
}

// Embed 为单条文本生成向量
func (c *HuggingFaceClient) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := c.embed(ctx, text)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.EmbeddingDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return vec, err
}

func (c *HuggingFaceClient) embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(embeddingRequest{Inputs: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post request to embedding api failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding api returned error status: %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}
	if len(result) == 0 || len(result[0]) == 0 {
		return nil, fmt.Errorf("embedding api returned empty vector")
	}
	if c.dimensions > 0 && len(result[0]) != c.dimensions {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, c.dimensions, len(result[0]))
	}

	return result[0], nil
}
