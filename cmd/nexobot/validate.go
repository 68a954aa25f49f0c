package main

import (
	"fmt"
	"net/url"

	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

// validFormats 支持的输出格式
var validFormats = map[string]bool{
	"json":     true,
	"txt":      true,
	"md":       true,
	"airtable": true,
}

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return utils.ValidateURL(urlStr)
}

// ValidateFlags 验证命令行标志
func ValidateFlags(
	targetURL string,
	sitemapURL string,
	format string,
	delay float64,
	maxArticles int,
	minDepth int,
	sitemapMode bool,
) error {
	// 验证URL (允许省略协议,NormalizeURL会补全)
	if targetURL != "" {
		normalized, err := NormalizeURL(targetURL)
		if err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
		if err := ValidateURL(normalized); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}
	if sitemapURL != "" {
		normalized, err := NormalizeURL(sitemapURL)
		if err != nil {
			return fmt.Errorf("无效的sitemap URL: %w", err)
		}
		if err := ValidateURL(normalized); err != nil {
			return fmt.Errorf("无效的sitemap URL: %w", err)
		}
	}

	// sitemap模式必须有目标
	if sitemapMode && targetURL == "" && sitemapURL == "" {
		return fmt.Errorf("sitemap模式需要--url或--sitemap-url指定目标")
	}

	// 验证请求间隔
	if delay < 0 {
		return fmt.Errorf("请求间隔不能为负数,当前值: %.2f", delay)
	}

	// 验证文章数上限
	if maxArticles < 0 {
		return fmt.Errorf("文章数上限不能为负数,当前值: %d", maxArticles)
	}

	// 验证路径深度
	if minDepth < 1 || minDepth > 10 {
		return fmt.Errorf("最小路径深度必须在1-10之间,当前值: %d", minDepth)
	}

	// 验证输出格式
	if format != "" && !validFormats[format] {
		return fmt.Errorf("无效的输出格式: %s (有效值: json, txt, md, airtable)", format)
	}

	return nil
}

// NormalizeURL 规范化URL
// 没有协议时默认补全https
func NormalizeURL(urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	// 如果没有协议,默认使用https
	if parsed.Scheme == "" {
		urlStr = "https://" + urlStr
		parsed, err = url.Parse(urlStr)
		if err != nil {
			return "", err
		}
	}

	return parsed.String(), nil
}
