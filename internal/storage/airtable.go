package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

const (
	// airtableBaseURL Airtable REST API基础地址
	airtableBaseURL = "https://api.airtable.com/v0"

	// airtableTimeout 单次API请求超时
	airtableTimeout = 30 * time.Second
)

// airtableFields 文章字段到Airtable列的固定映射
type airtableFields struct {
	URL             string `json:"URL"`
	Title           string `json:"Title"`
	MetaDescription string `json:"Meta Description"`
	Category        string `json:"Category"`
	Content         string `json:"Content"`
	JSON            string `json:"JSON"`
}

// airtableRecord 单条Airtable记录
type airtableRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields airtableFields `json:"fields"`
}

// airtablePayload 创建记录的请求体
type airtablePayload struct {
	Records []airtableRecord `json:"records"`
}

// airtableResponse 创建记录的响应体
type airtableResponse struct {
	Records []airtableRecord `json:"records"`
}

// AirtableClient Airtable API客户端
// 凭据是Personal Access Token (pat...),Base ID (app...)和Table ID (tbl...)
type AirtableClient struct {
	apiKey  string
	baseID  string
	tableID string
	baseURL string
	client  *http.Client
}

// NewAirtableClient 创建Airtable客户端
func NewAirtableClient(apiKey, baseID, tableID string) *AirtableClient {
	return &AirtableClient{
		apiKey:  apiKey,
		baseID:  baseID,
		tableID: tableID,
		baseURL: airtableBaseURL,
		client:  &http.Client{Timeout: airtableTimeout},
	}
}

// Endpoint 返回目标表的API地址
func (c *AirtableClient) Endpoint() string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, c.tableID)
}

// CreateRecord 把一篇文章写入Airtable,返回新记录ID
// 正文HTML的换行转义为字面\n,回车符移除,保证单元格内单行存储
func (c *AirtableClient) CreateRecord(ctx context.Context, article *models.Article) (string, error) {
	contentEscaped := strings.ReplaceAll(article.Content, "\n", "\\n")
	contentEscaped = strings.ReplaceAll(contentEscaped, "\r", "")

	jsonData, err := article.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化文章失败: %w", err)
	}

	payload := airtablePayload{
		Records: []airtableRecord{{
			Fields: airtableFields{
				URL:             article.URL,
				Title:           article.Title,
				MetaDescription: article.MetaDescription,
				Category:        article.Category,
				Content:         contentEscaped,
				JSON:            string(jsonData),
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化请求体失败: %w", err)
	}

	utils.Infof("📤 发送到Airtable: %s", truncateTitle(article.Title, 50))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求Airtable失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Airtable响应失败: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("Airtable返回HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result airtableResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("解析Airtable响应失败: %w", err)
	}
	if len(result.Records) == 0 || result.Records[0].ID == "" {
		return "", fmt.Errorf("Airtable响应格式异常: %s", string(respBody))
	}

	recordID := result.Records[0].ID
	utils.Infof("✅ Airtable记录已创建: %s", recordID)
	return recordID, nil
}

// truncateTitle 截断标题用于日志输出
func truncateTitle(title string, max int) string {
	runes := []rune(title)
	if len(runes) <= max {
		return title
	}
	return string(runes[:max]) + "..."
}
