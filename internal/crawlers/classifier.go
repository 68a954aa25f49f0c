package crawlers

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

const (
	// DefaultMinPathDepth 文章URL的默认最小路径深度
	// 如 /updates/category/slug = 3段
	DefaultMinPathDepth = 3
)

var (
	// archivePatterns 归档/列表页的路径特征
	archivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^/page/\d+/?$`),         // /page/2
		regexp.MustCompile(`(?i)^/[^/]+/page/\d+/?$`),   // /blog/page/2
		regexp.MustCompile(`(?i)^/category/`),           // /category/something
		regexp.MustCompile(`(?i)^/tag/`),                // /tag/something
		regexp.MustCompile(`(?i)^/author/`),             // /author/someone
		regexp.MustCompile(`(?i)^/archive/`),            // /archive/
		regexp.MustCompile(`(?i)^/search`),              // /search?q=
		regexp.MustCompile(`(?i)/feed/?$`),              // RSS feed
		regexp.MustCompile(`(?i)\.rss$`),                // feed.rss
	}

	// singleSegmentPattern 单段路径 (如 /updates)
	// 通常是归档页,但博客子域名例外 (blog.site.com/my-post 就是文章)
	singleSegmentPattern = regexp.MustCompile(`^/[^/]+/?$`)

	// paginationParams 分页查询参数
	paginationParams = []string{"page", "paged", "p", "offset"}

	// blogSubdomains 承载文章内容的常见子域名
	blogSubdomains = []string{"blog", "news", "articles", "content"}

	// pagePathPattern 路径中的分页片段
	pagePathPattern = regexp.MustCompile(`/page/\d+`)
)

// DocumentFetcher 提供HTML文档抓取能力
// 分类器用它对形态不明确的URL做轻量探测
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// Classifier URL分类器
// 根据URL形态(必要时辅以一次轻量抓取)判断URL是文章页、归档页还是sitemap
type Classifier struct {
	minDepth       int
	skipValidation bool
	prober         DocumentFetcher
}

// NewClassifier 创建URL分类器
// prober可为nil,此时形态不明确的URL直接按形态结果处理
func NewClassifier(minDepth int, skipValidation bool, prober DocumentFetcher) *Classifier {
	if minDepth <= 0 {
		minDepth = DefaultMinPathDepth
	}
	return &Classifier{
		minDepth:       minDepth,
		skipValidation: skipValidation,
		prober:         prober,
	}
}

// Classify 对URL分类
// 分类只依赖URL形态,是纯函数;唯一的例外是形态不明确时的网络探测,
// 探测失败会退回形态结果,不产生错误
func (c *Classifier) Classify(ctx context.Context, rawURL string) models.UrlKind {
	// 1. sitemap引用: 路径以.xml结尾
	if IsSitemapURL(rawURL) {
		return models.KindSitemapReference
	}

	// 2. 根域名: 交给sitemap发现流程
	if c.IsRootDomain(rawURL) {
		return models.KindArchiveIndex
	}

	// 3. 归档形态: 分页参数或已知归档路径
	if c.hasPagination(rawURL) || c.matchesArchivePattern(rawURL) {
		return models.KindArchiveIndex
	}

	// 4. skip-validation模式: 信任形态,余下的都当文章处理
	// 提高召回但可能降低精度,由操作者自行权衡
	if c.skipValidation {
		return models.KindArticle
	}

	// 5. 文章形态: 路径足够深且以slug结尾
	if ok, _ := c.checkArticleShape(rawURL); ok {
		return models.KindArticle
	}

	// 6. 形态不明确: 轻量探测一次
	// 探测不可达时退回形态结果(归档页)
	if c.prober != nil {
		if kind, ok := c.probe(ctx, rawURL); ok {
			return kind
		}
	}
	return models.KindArchiveIndex
}

// ValidateArticleURL 判断URL是否为有效的文章页形态
// 返回判定结果和原因(用于日志)
func (c *Classifier) ValidateArticleURL(rawURL string) (bool, string) {
	if c.IsRootDomain(rawURL) {
		return false, "根域名(应使用sitemap发现)"
	}
	if c.hasPagination(rawURL) {
		return false, "URL带分页参数"
	}
	if c.matchesArchivePattern(rawURL) {
		return false, "URL匹配归档页形态"
	}
	return c.checkArticleShape(rawURL)
}

// checkArticleShape 检查路径深度和slug结尾
func (c *Classifier) checkArticleShape(rawURL string) (bool, string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, "URL解析失败"
	}

	depth := pathDepth(parsed)
	minDepth := c.minDepth
	if hasBlogSubdomain(parsed) {
		// 博客子域名的路径通常更浅 (blog.site.com/my-post)
		minDepth = 1
	}
	if depth < minDepth {
		return false, "路径太浅"
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" || isAllDigits(last) {
		return false, "URL末段不是有效slug"
	}

	return true, "有效的文章URL"
}

// probe 轻量探测: 抓取页面检查文章特征
// 第二个返回值表示探测是否可用(不可达时为false)
func (c *Classifier) probe(ctx context.Context, rawURL string) (models.UrlKind, bool) {
	doc, err := c.prober.FetchDocument(ctx, rawURL)
	if err != nil {
		utils.Debugf("探测不可达,按形态分类 [%s]: %v", rawURL, err)
		return models.KindUnclassified, false
	}

	// og:type=article 或存在<article>元素即认为是文章页
	ogType, _ := doc.Find(`meta[property="og:type"]`).Attr("content")
	if strings.EqualFold(strings.TrimSpace(ogType), "article") {
		return models.KindArticle, true
	}
	if doc.Find("article").Length() > 0 {
		return models.KindArticle, true
	}

	return models.KindArchiveIndex, true
}

// IsRootDomain 判断URL是否为根域名(无路径或仅"/",且无查询串)
func (c *Classifier) IsRootDomain(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Trim(parsed.Path, "/") == "" && parsed.RawQuery == ""
}

// hasPagination 检查分页特征(查询参数或路径中的/page/N)
func (c *Classifier) hasPagination(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	query := parsed.Query()
	for _, param := range paginationParams {
		if query.Has(param) {
			return true
		}
	}

	return pagePathPattern.MatchString(parsed.Path)
}

// matchesArchivePattern 检查路径是否匹配归档页形态
func (c *Classifier) matchesArchivePattern(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	for _, pattern := range archivePatterns {
		if pattern.MatchString(parsed.Path) {
			return true
		}
	}

	// 单段路径按归档处理,博客子域名除外
	if !hasBlogSubdomain(parsed) && singleSegmentPattern.MatchString(parsed.Path) {
		return true
	}

	return false
}

// IsSitemapURL 判断URL路径是否指向sitemap文件
func IsSitemapURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".xml")
	}
	return strings.HasSuffix(strings.ToLower(parsed.Path), ".xml")
}

// pathDepth 统计路径段数
func pathDepth(parsed *url.URL) int {
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return 0
	}
	return len(strings.Split(path, "/"))
}

// hasBlogSubdomain 检查主机名是否带博客类子域名 (如 blog.site.com)
func hasBlogSubdomain(parsed *url.URL) bool {
	hostname := strings.ToLower(parsed.Hostname())
	parts := strings.Split(hostname, ".")
	if len(parts) < 3 {
		return false
	}

	subdomain := parts[0]
	if subdomain == "www" {
		return false
	}
	for _, s := range blogSubdomains {
		if subdomain == s {
			return true
		}
	}
	return false
}

// isAllDigits 判断字符串是否全为数字
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
