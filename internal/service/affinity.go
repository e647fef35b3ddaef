package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AffinityProvider 个性化亲和度来源（外部协作方）。
// 返回 user 对各 author 的交互亲和分，范围约定 [0, 1]。
type AffinityProvider interface {
	Affinities(ctx context.Context, userID string, authorIDs []string) (map[string]float64, error)
}

// HTTPAffinityProvider 调外部 personalization 服务
type HTTPAffinityProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAffinityProvider(baseURL string, timeout time.Duration) *HTTPAffinityProvider {
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	return &HTTPAffinityProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPAffinityProvider) Affinities(ctx context.Context, userID string, authorIDs []string) (map[string]float64, error) {
	body, err := json.Marshal(map[string]any{"user_id": userID, "author_ids": authorIDs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/affinities", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("affinity service status %d", resp.StatusCode)
	}

	var out map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// StaticAffinityProvider 固定映射，测试与本地联调用
type StaticAffinityProvider struct {
	Scores map[string]float64 // key = userID:authorID
	Err    error
}

func (p *StaticAffinityProvider) Affinities(_ context.Context, userID string, authorIDs []string) (map[string]float64, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make(map[string]float64, len(authorIDs))
	for _, a := range authorIDs {
		out[a] = p.Scores[userID+":"+a]
	}
	return out, nil
}
