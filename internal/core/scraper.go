package core

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/NexoBot/internal/crawlers"
	"github.com/RecoveryAshes/NexoBot/internal/extractors"
	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

// ScraperOptions 抓取流水线的构建参数
type ScraperOptions struct {
	// Timeout 单次请求超时(秒)
	Timeout int

	// Delay 同一抓取器连续请求间隔(秒)
	Delay float64

	// MinDepth 文章URL最小路径深度
	MinDepth int

	// SkipValidation 跳过URL形态校验
	SkipValidation bool

	// Headers HTTP头部提供者(可为nil)
	Headers models.HeaderProvider

	// ShowProgress 批量抓取时显示进度条(一次性模式用)
	ShowProgress bool
}

// Scraper 抓取流水线门面
// 把抓取、分类、sitemap解析和内容提取串成一条流水线,
// CLI和域名工作器都通过它完成具体工作。门面自身不起goroutine
type Scraper struct {
	fetcher      *crawlers.Fetcher
	classifier   *crawlers.Classifier
	resolver     *crawlers.SitemapResolver
	chain        *extractors.Chain
	showProgress bool
}

// NewScraper 创建抓取流水线
// 每个域名工作器持有独立实例,请求间隔和超时互不影响
func NewScraper(opts ScraperOptions) *Scraper {
	fetcher := crawlers.NewFetcher(crawlers.FetcherConfig{
		Timeout:        opts.Timeout,
		Delay:          opts.Delay,
		HeaderProvider: opts.Headers,
	})

	return &Scraper{
		fetcher:      fetcher,
		classifier:   crawlers.NewClassifier(opts.MinDepth, opts.SkipValidation, fetcher),
		resolver:     crawlers.NewSitemapResolver(fetcher),
		chain:        extractors.NewChain(),
		showProgress: opts.ShowProgress,
	}
}

// Classify 对URL分类
func (s *Scraper) Classify(ctx context.Context, rawURL string) models.UrlKind {
	return s.classifier.Classify(ctx, rawURL)
}

// ValidateArticleURL 判断URL是否为有效的文章页形态
func (s *Scraper) ValidateArticleURL(rawURL string) (bool, string) {
	return s.classifier.ValidateArticleURL(rawURL)
}

// IsRootDomain 判断URL是否为根域名
func (s *Scraper) IsRootDomain(rawURL string) bool {
	return s.classifier.IsRootDomain(rawURL)
}

// ScrapeOne 抓取并提取单个URL
// validate为true时先做URL形态校验,不符合文章形态直接拒绝。
// sitemap解析出的URL在上游已经过滤,用validate=false避免重复校验
func (s *Scraper) ScrapeOne(ctx context.Context, rawURL string, validate bool) (*models.Article, error) {
	if validate {
		if ok, reason := s.classifier.ValidateArticleURL(rawURL); !ok {
			return nil, &models.ExtractionError{
				URL:    rawURL,
				Reason: fmt.Sprintf("URL形态校验未通过: %s", reason),
			}
		}
	}

	utils.Infof("🔍 抓取文章: %s", rawURL)
	doc, err := s.fetcher.FetchDocument(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	article, err := s.chain.Extract(doc, rawURL)
	if err != nil {
		return nil, err
	}

	utils.Infof("✅ 提取成功: %s (%d 字)", utils.TruncateString(article.Title, 50), article.ContentLength())
	return article, nil
}

// ResolveSitemap 解析sitemap为候选URL序列
func (s *Scraper) ResolveSitemap(ctx context.Context, target string, maxArticles int) ([]models.UrlEntry, error) {
	return s.resolver.Resolve(ctx, target, maxArticles)
}

// DiscoverSitemap 在根域名的常见路径下探测sitemap
func (s *Scraper) DiscoverSitemap(ctx context.Context, rootURL string) (string, error) {
	return s.resolver.Discover(ctx, rootURL)
}

// BatchResult 批量抓取的结果统计
type BatchResult struct {
	Stats  models.DomainStats
	Failed []models.FailedURLInfo
}

// ScrapeSitemap 解析sitemap并批量抓取其中的文章
// 流程: 解析 -> 形态过滤 -> 逐个抓取提取 -> 通过fn回调交给调用方处理。
// fn返回错误按入库失败计数,单个URL失败不中断批次
func (s *Scraper) ScrapeSitemap(ctx context.Context, sitemapURL string, maxArticles int, fn func(*models.Article) error) (*BatchResult, error) {
	result := &BatchResult{
		Stats: models.DomainStats{Domain: models.ExtractDomain(sitemapURL)},
	}

	entries, err := s.resolver.Resolve(ctx, sitemapURL, maxArticles)
	if err != nil {
		return result, err
	}
	result.Stats.SitemapURLs = len(entries)

	// 形态过滤: 剔除归档页、分页和其他非文章URL
	valid := make([]models.UrlEntry, 0, len(entries))
	for _, entry := range entries {
		ok, reason := s.classifier.ValidateArticleURL(entry.RawURL)
		if !ok {
			result.Stats.SkippedInvalid++
			utils.Debugf("⏭️ 跳过非文章URL: %s (%s)", entry.RawURL, reason)
			continue
		}
		valid = append(valid, entry)
	}
	utils.Infof("📋 sitemap共 %d 个候选URL, %d 个通过形态校验", len(entries), len(valid))

	var bar = func(int) {}
	if s.showProgress && len(valid) > 0 {
		pb := utils.NewProgressBar(len(valid), "抓取文章")
		bar = func(n int) { _ = pb.Add(n) }
	}

	for i, entry := range valid {
		if ctx.Err() != nil {
			utils.Warnf("⚠️ 批量抓取被中断, 已处理 %d/%d", i, len(valid))
			return result, ctx.Err()
		}

		article, err := s.ScrapeOne(ctx, entry.RawURL, false)
		if err != nil {
			s.recordFailure(result, entry.RawURL, err)
			bar(1)
			continue
		}

		if err := fn(article); err != nil {
			result.Stats.SinkFailures++
			result.Failed = append(result.Failed, models.FailedURLInfo{
				URL:       entry.RawURL,
				ErrorType: "sink",
				ErrorMsg:  err.Error(),
			})
			utils.Errorf("❌ 文章处理失败 [%s]: %v", entry.RawURL, err)
			bar(1)
			continue
		}

		result.Stats.Emitted++
		bar(1)
	}

	return result, nil
}

// DiscoverAndScrape 先探测sitemap再批量抓取
// 根域名没有可发现的sitemap时返回SitemapError,由调用方决定如何降级
func (s *Scraper) DiscoverAndScrape(ctx context.Context, rootURL string, maxArticles int, fn func(*models.Article) error) (*BatchResult, error) {
	sitemapURL, err := s.resolver.Discover(ctx, rootURL)
	if err != nil {
		return &BatchResult{
			Stats: models.DomainStats{Domain: models.ExtractDomain(rootURL)},
		}, err
	}
	return s.ScrapeSitemap(ctx, sitemapURL, maxArticles, fn)
}

// recordFailure 按错误类型归档失败记录
func (s *Scraper) recordFailure(result *BatchResult, rawURL string, err error) {
	errType := failureType(err)
	switch errType {
	case "extract":
		result.Stats.ExtractFailures++
	default:
		result.Stats.FetchFailures++
	}

	result.Failed = append(result.Failed, models.FailedURLInfo{
		URL:       rawURL,
		ErrorType: errType,
		ErrorMsg:  err.Error(),
	})
	utils.Warnf("⚠️ 抓取失败 [%s]: %v", rawURL, err)
}
