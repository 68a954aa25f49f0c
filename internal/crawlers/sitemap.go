package crawlers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

const (
	// MaxSitemapDepth sitemap索引的最大递归深度
	MaxSitemapDepth = 3

	// DefaultURLCap 未限定文章数时的URL收集上限
	DefaultURLCap = 5000

	// FetchMultiplier 限定文章数时收集上限的放宽倍数
	// 收集上限 = maxArticles * FetchMultiplier,余量用于抵消去重损耗
	FetchMultiplier = 3

	// NoLimit 表示不限制候选数量
	NoLimit = -1
)

// sitemapDiscoveryPaths 常见的sitemap路径,按优先级探测
var sitemapDiscoveryPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/post-sitemap.xml",
	"/page-sitemap.xml",
	"/wp-sitemap.xml",
}

// sitemapIgnoreKeywords 非正文类子sitemap的关键字
// 索引中没有post子sitemap时,含这些关键字的子sitemap会被跳过
var sitemapIgnoreKeywords = []string{"category", "tag", "author", "user", "page"}

// xmlURLSet 标准sitemap的根元素
type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlURL `xml:"url"`
}

// xmlURL <urlset>中的单个<url>条目
type xmlURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// xmlSitemapIndex sitemap索引的根元素
type xmlSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

// xmlSitemap <sitemapindex>中的单个<sitemap>条目
type xmlSitemap struct {
	Loc string `xml:"loc"`
}

// SitemapFetcher 抽象sitemap解析所需的抓取能力
type SitemapFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	Head(ctx context.Context, rawURL string) (int, error)
}

// SitemapResolver 把根域名或sitemap地址展开为文章候选URL列表
// 支持嵌套的sitemap索引,递归深度和总量都有上限,
// 防止恶意或循环引用的sitemap链耗尽内存
type SitemapResolver struct {
	fetcher SitemapFetcher

	// urlCap 未限定文章数时的收集上限
	urlCap int
}

// NewSitemapResolver 创建sitemap解析器
func NewSitemapResolver(fetcher SitemapFetcher) *SitemapResolver {
	return &SitemapResolver{
		fetcher: fetcher,
		urlCap:  DefaultURLCap,
	}
}

// resolveState 单次Resolve调用的收集状态
type resolveState struct {
	entries []models.UrlEntry
	seen    map[string]bool // 归一化URL去重
	visited map[string]bool // 已访问的sitemap,防循环引用
	limit   int
}

// full 判断收集量是否已达上限
func (s *resolveState) full() bool {
	return len(s.entries) >= s.limit
}

// add 去重后追加一个候选URL,保持文档顺序
func (s *resolveState) add(loc, lastmod string) {
	loc = strings.TrimSpace(loc)
	if loc == "" || s.full() {
		return
	}

	key := models.NormalizeURL(loc)
	if s.seen[key] {
		return
	}
	s.seen[key] = true

	entry := models.NewUrlEntry(loc)
	entry.LastMod = strings.TrimSpace(lastmod)
	s.entries = append(s.entries, entry)
}

// Resolve 展开sitemap为有限、去重、保序的候选URL列表
// maxArticles > 0 时按文档顺序截取前maxArticles条;
// maxArticles == 0 返回空列表; NoLimit 不限制(受DefaultURLCap约束)
// 顶层sitemap抓取或解析失败返回*models.SitemapError
func (r *SitemapResolver) Resolve(ctx context.Context, target string, maxArticles int) ([]models.UrlEntry, error) {
	if maxArticles == 0 {
		return []models.UrlEntry{}, nil
	}

	collectCap := r.urlCap
	if maxArticles > 0 {
		collectCap = maxArticles * FetchMultiplier
	}

	st := &resolveState{
		seen:    make(map[string]bool),
		visited: make(map[string]bool),
		limit:   collectCap,
	}

	if err := r.resolveInto(ctx, target, 0, st); err != nil {
		return nil, err
	}

	entries := st.entries
	if maxArticles > 0 && len(entries) > maxArticles {
		entries = entries[:maxArticles]
	}

	utils.Infof("🗺️ sitemap解析完成: %s, 共 %d 个候选URL", target, len(entries))
	return entries, nil
}

// resolveInto 递归解析sitemap,结果写入收集状态
// 只有当前层的抓取和解析失败会返回错误,
// 子sitemap失败由resolveChildren记录警告后继续
func (r *SitemapResolver) resolveInto(ctx context.Context, target string, depth int, st *resolveState) error {
	if depth >= MaxSitemapDepth {
		utils.Warnf("sitemap递归深度超限,跳过: %s", target)
		return nil
	}
	if st.full() {
		return nil
	}

	key := models.NormalizeURL(target)
	if st.visited[key] {
		utils.Warnf("检测到sitemap循环引用,跳过: %s", target)
		return nil
	}
	st.visited[key] = true

	utils.Infof("🗺️ 获取sitemap: %s", target)
	body, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		return &models.SitemapError{URL: target, Cause: err}
	}

	// 先按索引解析,根元素不匹配时再按普通sitemap解析
	if children, indexErr := parseSitemapIndex(body); indexErr == nil {
		utils.Infof("🗺️ 发现sitemap索引,共 %d 个子sitemap", len(children))
		return r.resolveChildren(ctx, children, depth, st)
	}

	urls, err := parseURLSet(body)
	if err != nil {
		return &models.SitemapError{URL: target, Cause: err}
	}

	for _, u := range urls {
		if st.full() {
			break
		}
		st.add(u.Loc, u.LastMod)
	}
	return nil
}

// resolveChildren 展开sitemap索引的子sitemap
// 优先选择路径末段含"post"的子sitemap;
// 没有post类时遍历全部子sitemap,但跳过分类/标签/作者/用户/分页类
func (r *SitemapResolver) resolveChildren(ctx context.Context, children []string, depth int, st *resolveState) error {
	postChildren := make([]string, 0, len(children))
	for _, child := range children {
		if hasPostSegment(child) {
			postChildren = append(postChildren, child)
		}
	}

	targets := children
	preferPost := len(postChildren) > 0
	if preferPost {
		utils.Infof("🗺️ 优先处理 %d 个post子sitemap", len(postChildren))
		targets = postChildren
	}

	for _, child := range targets {
		if st.full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return &models.SitemapError{URL: child, Cause: err}
		}

		if !preferPost && containsIgnoredKeyword(child) {
			utils.Debugf("跳过非正文子sitemap: %s", child)
			continue
		}

		if err := r.resolveInto(ctx, child, depth+1, st); err != nil {
			utils.Warnf("子sitemap解析失败: %v", err)
		}
	}
	return nil
}

// Discover 探测根域名下的常见路径,返回第一个可达的sitemap地址
// 所有路径都不可达时返回*models.SitemapError,调用方可降级处理
func (r *SitemapResolver) Discover(ctx context.Context, rootURL string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(rootURL), "/")

	for _, path := range sitemapDiscoveryPaths {
		if err := ctx.Err(); err != nil {
			return "", &models.SitemapError{URL: rootURL, Cause: err}
		}

		candidate := base + path
		status, err := r.fetcher.Head(ctx, candidate)
		if err != nil {
			utils.Debugf("sitemap探测未命中 [%s]: %v", candidate, err)
			continue
		}
		if status == http.StatusOK {
			utils.Infof("🔍 发现sitemap: %s", candidate)
			return candidate, nil
		}
	}

	return "", &models.SitemapError{
		URL:   rootURL,
		Cause: fmt.Errorf("常见路径下未发现sitemap"),
	}
}

// parseSitemapIndex 按sitemap索引解析XML
// 根元素不是<sitemapindex>时返回错误
func parseSitemapIndex(body []byte) ([]string, error) {
	var index xmlSitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("解析sitemap索引失败: %w", err)
	}

	children := make([]string, 0, len(index.Sitemaps))
	for _, s := range index.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			children = append(children, loc)
		}
	}
	return children, nil
}

// parseURLSet 按普通sitemap解析XML,提取<url>条目
func parseURLSet(body []byte) ([]xmlURL, error) {
	var urlset xmlURLSet
	if err := xml.Unmarshal(body, &urlset); err != nil {
		return nil, fmt.Errorf("解析sitemap失败: %w", err)
	}
	return urlset.URLs, nil
}

// hasPostSegment 判断子sitemap路径末段是否含"post"
func hasPostSegment(sitemapURL string) bool {
	segments := strings.Split(strings.ToLower(sitemapURL), "/")
	return strings.Contains(segments[len(segments)-1], "post")
}

// containsIgnoredKeyword 判断子sitemap是否属于非正文类
func containsIgnoredKeyword(sitemapURL string) bool {
	lower := strings.ToLower(sitemapURL)
	for _, keyword := range sitemapIgnoreKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
