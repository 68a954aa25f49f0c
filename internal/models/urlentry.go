package models

import (
	"net/url"
	"strings"
)

// UrlKind URL分类结果
type UrlKind string

const (
	KindUnclassified     UrlKind = "unclassified"      // 未分类
	KindArticle          UrlKind = "article"           // 文章页
	KindArchiveIndex     UrlKind = "archive_index"     // 归档/索引页
	KindSitemapReference UrlKind = "sitemap_reference" // sitemap引用
)

// UrlEntry 表示域名队列中的一个URL项
// 用途:
//   - 配置种子URL和sitemap解析结果的统一载体
//   - 每个工作器独占自己域名的队列,条目不跨域名共享
type UrlEntry struct {
	// RawURL 完整的URL字符串
	RawURL string

	// Domain 所属域名(小写,不含端口)
	Domain string

	// Kind 分类结果
	Kind UrlKind

	// LastMod sitemap提供的最后修改日期(可选,用于排查)
	LastMod string
}

// NewUrlEntry 创建未分类的URL项
func NewUrlEntry(rawURL string) UrlEntry {
	return UrlEntry{
		RawURL: rawURL,
		Domain: ExtractDomain(rawURL),
		Kind:   KindUnclassified,
	}
}

// ExtractDomain 提取URL的域名(小写,去端口)
// 解析失败时返回空串
func ExtractDomain(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// NormalizeURL 归一化URL用于去重比较
// 规则:
//   - 协议和主机统一小写
//   - 去掉默认端口 (http的80, https的443)
//   - 丢弃查询串和锚点
//   - 去掉末尾斜杠 (根路径"/"归一为空)
func NormalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return trimmed
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")
	return scheme + "://" + host + path
}
