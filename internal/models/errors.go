package models

import "fmt"

// FetchError 页面抓取错误
// 网络失败或超时属于瞬态错误,URL不会被标记为已抓取,下一轮循环会重试
type FetchError struct {
	// URL 请求的目标URL
	URL string

	// StatusCode HTTP状态码 (0表示未收到响应)
	StatusCode int

	// Cause 底层错误 (超时、连接被拒等)
	Cause error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("抓取失败 [%s]: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("抓取失败 [%s]: %v", e.URL, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// ExtractionError 内容提取错误
// 所有策略都无法产出有效文章时返回,URL不会被标记为已抓取
type ExtractionError struct {
	// URL 文章URL
	URL string

	// Reason 失败原因 (如"未找到标题"、"正文过短")
	Reason string
}

// Error 实现error接口
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("提取失败 [%s]: %s", e.URL, e.Reason)
}

// SitemapError sitemap解析错误
// sitemap不可达或格式错误时返回,本轮该域名的sitemap队列为空,工作器继续处理其它URL
type SitemapError struct {
	// URL sitemap的URL
	URL string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *SitemapError) Error() string {
	return fmt.Sprintf("sitemap错误 [%s]: %v", e.URL, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *SitemapError) Unwrap() error {
	return e.Cause
}

// SinkError 文章入库错误
// 输出端(文件/Airtable)写入失败时返回,URL保持未抓取状态以便重试
type SinkError struct {
	// Sink 输出端名称 (如 "file:json"、"airtable")
	Sink string

	// URL 文章URL
	URL string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *SinkError) Error() string {
	return fmt.Sprintf("入库失败 [%s -> %s]: %v", e.URL, e.Sink, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *SinkError) Unwrap() error {
	return e.Cause
}
