package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// generator 是 genai.GenerativeModel 的子集，方便测试替换
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client 同时实现 port.RemoteScorer 和 port.Narrator
type Client struct {
	client  *genai.Client
	model   generator
	timeout time.Duration
}

func NewClient(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	// 强制要求返回 JSON，降低解析错误的概率
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	return &Client{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// generate 调用模型并返回第一段文本
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("AI 调用失败: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("AI 返回内容为空")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("AI 返回格式错误")
	}
	return string(text), nil
}

// extractJSON 即使模型返回 "```json { ... } ```"，也能抠出中间的 { ... }
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("无法提取 JSON, AI 原文: %s", raw)
	}
	return raw[start : end+1], nil
}
