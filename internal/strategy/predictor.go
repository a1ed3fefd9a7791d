package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tnb-trading-bot-go/internal/models"
)

// HTTPPredictor 通过 HTTP 调用外部预测服务。
// 服务收到世界状态的 JSON, 返回一个 Decision JSON。
type HTTPPredictor struct {
	url        string
	httpClient *http.Client
}

// NewHTTPPredictor 创建一个新的 HTTPPredictor 实例
func NewHTTPPredictor(url string) *HTTPPredictor {
	return &HTTPPredictor{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPPredictor) Predict(ctx context.Context, req *PredictRequest) (models.Decision, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return models.Decision{}, fmt.Errorf("encode predict request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return models.Decision{}, fmt.Errorf("build predict request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return models.Decision{}, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Decision{}, fmt.Errorf("read predict response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Decision{}, fmt.Errorf("predict service returned %d", resp.StatusCode)
	}

	var decision models.Decision
	if err := json.Unmarshal(body, &decision); err != nil {
		return models.Decision{}, fmt.Errorf("decode predict response: %w", err)
	}
	return decision, nil
}
