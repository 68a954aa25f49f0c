package core

import (
	"context"
	"time"

	"github.com/RecoveryAshes/NexoBot/internal/crawlers"
	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

// WorkerConfig 单个域名工作器的配置
type WorkerConfig struct {
	// Domain 负责的域名(小写)
	Domain string

	// Seeds 配置里属于该域名的种子URL(保持配置顺序)
	Seeds []string

	// WorkerMode true时循环运行,false时处理完一轮即停止
	WorkerMode bool

	// CycleDelay 两轮循环之间的休眠秒数
	CycleDelay int

	// MaxArticles 每个sitemap最多解析的文章数(NoLimit表示不限制)
	MaxArticles int

	// PreventDuplicates 启用历史去重
	PreventDuplicates bool
}

// WorkerResult 工作器的运行结果
type WorkerResult struct {
	Stats  models.DomainStats
	Saved  []models.SavedFileInfo
	Failed []models.FailedURLInfo
}

// DomainWorker 域名工作器
// 每个域名一个实例,独占自己的URL队列,循环依次处理。
// 种子URL按形态路由: sitemap引用展开到队列,根域名先做sitemap发现,
// 其余一律按文章页抓取(配置进来的URL尊重操作者意图,不做形态校验)
type DomainWorker struct {
	config  WorkerConfig
	scraper *Scraper
	sink    models.ArticleSink
	history *HistoryManager // nil表示不去重
	queue   []models.UrlEntry
	result  *WorkerResult
}

// NewDomainWorker 创建域名工作器
// history传nil时跳过历史去重
func NewDomainWorker(config WorkerConfig, scraper *Scraper, sink models.ArticleSink, history *HistoryManager) *DomainWorker {
	if config.MaxArticles == 0 {
		config.MaxArticles = crawlers.NoLimit
	}
	if !config.PreventDuplicates {
		history = nil
	}

	return &DomainWorker{
		config:  config,
		scraper: scraper,
		sink:    sink,
		history: history,
		result: &WorkerResult{
			Stats: models.DomainStats{Domain: config.Domain},
		},
	}
}

// Run 运行工作器直到停止
// worker模式下循环处理直到ctx取消,一次性模式处理完队列即返回。
// 单个URL的失败只记入统计,不会中断工作器
func (w *DomainWorker) Run(ctx context.Context) *WorkerResult {
	utils.Infof("🚀 [%s] 工作器启动, %d 个种子URL", w.config.Domain, len(w.config.Seeds))

	cycle := 0
	for {
		cycle++
		w.result.Stats.Cycles = cycle
		if w.config.WorkerMode {
			utils.Infof("🔄 [%s] 第 %d 轮开始", w.config.Domain, cycle)
		}

		w.runCycle(ctx)

		if !w.config.WorkerMode || ctx.Err() != nil {
			break
		}

		utils.Infof("😴 [%s] 本轮完成, 休眠 %d 秒", w.config.Domain, w.config.CycleDelay)
		if !sleepWithContext(ctx, time.Duration(w.config.CycleDelay)*time.Second) {
			break
		}
	}

	utils.Infof("🛑 [%s] 工作器停止 (共 %d 轮, 入库 %d 篇)",
		w.config.Domain, cycle, w.result.Stats.Emitted)
	return w.result
}

// runCycle 处理一轮: 用种子重填队列,逐个消费直到队列空
func (w *DomainWorker) runCycle(ctx context.Context) {
	w.queue = w.queue[:0]
	for _, seed := range w.config.Seeds {
		w.queue = append(w.queue, models.NewUrlEntry(seed))
	}

	for len(w.queue) > 0 {
		if ctx.Err() != nil {
			utils.Warnf("⚠️ [%s] 收到停止信号, 本轮剩余 %d 个URL未处理", w.config.Domain, len(w.queue))
			return
		}

		entry := w.queue[0]
		w.queue = w.queue[1:]
		w.processEntry(ctx, entry)
	}
}

// processEntry 处理单个队列条目
// sitemap展开出的条目带KindArticle标记(已通过形态过滤),直接抓取;
// 种子条目按形态路由
func (w *DomainWorker) processEntry(ctx context.Context, entry models.UrlEntry) {
	if entry.Kind == models.KindArticle {
		w.scrapeAndEmit(ctx, entry.RawURL)
		return
	}

	switch {
	case crawlers.IsSitemapURL(entry.RawURL):
		w.expandSitemap(ctx, entry.RawURL)

	case w.scraper.IsRootDomain(entry.RawURL):
		sitemapURL, err := w.scraper.DiscoverSitemap(ctx, entry.RawURL)
		if err != nil {
			// 没有可发现的sitemap时退而求其次,把根页面本身当文章试一次
			utils.Warnf("⚠️ [%s] sitemap发现失败, 尝试直接抓取根页面: %v", w.config.Domain, err)
			w.scrapeAndEmit(ctx, entry.RawURL)
			return
		}
		w.expandSitemap(ctx, sitemapURL)

	default:
		w.scrapeAndEmit(ctx, entry.RawURL)
	}
}

// expandSitemap 解析sitemap并把有效文章URL排进队列
// 解析失败只影响这一个sitemap,工作器继续处理队列里的其它条目
func (w *DomainWorker) expandSitemap(ctx context.Context, sitemapURL string) {
	entries, err := w.scraper.ResolveSitemap(ctx, sitemapURL, w.config.MaxArticles)
	if err != nil {
		utils.Warnf("⚠️ [%s] sitemap解析失败 [%s]: %v", w.config.Domain, sitemapURL, err)
		w.result.Failed = append(w.result.Failed, models.FailedURLInfo{
			URL:       sitemapURL,
			ErrorType: "sitemap",
			ErrorMsg:  err.Error(),
		})
		return
	}

	w.result.Stats.SitemapURLs += len(entries)

	// sitemap出来的URL先过形态校验,归档页和分页直接丢弃
	valid := 0
	for _, entry := range entries {
		ok, reason := w.scraper.ValidateArticleURL(entry.RawURL)
		if !ok {
			w.result.Stats.SkippedInvalid++
			utils.Debugf("⏭️ [%s] 跳过非文章URL: %s (%s)", w.config.Domain, entry.RawURL, reason)
			continue
		}
		entry.Kind = models.KindArticle
		w.queue = append(w.queue, entry)
		valid++
	}

	utils.Infof("📋 [%s] sitemap展开: %d 个候选, %d 个有效文章URL", w.config.Domain, len(entries), valid)
}

// scrapeAndEmit 抓取单个URL并交给输出端
// 去重协议: 抓取前占用URL,任何一步失败都归还占用,
// 只有入库成功才提交历史,保证失败的URL下一轮还能重试
func (w *DomainWorker) scrapeAndEmit(ctx context.Context, rawURL string) {
	if w.history != nil {
		if !w.history.Claim(rawURL) {
			w.result.Stats.SkippedSeen++
			utils.Debugf("⏭️ [%s] 已抓取过, 跳过: %s", w.config.Domain, rawURL)
			return
		}
	}

	article, err := w.scraper.ScrapeOne(ctx, rawURL, false)
	if err != nil {
		w.release(rawURL)
		w.recordFailure(rawURL, err)
		return
	}

	info, err := w.sink.Emit(ctx, article)
	if err != nil {
		w.release(rawURL)
		w.result.Stats.SinkFailures++
		w.result.Failed = append(w.result.Failed, models.FailedURLInfo{
			URL:       rawURL,
			ErrorType: "sink",
			ErrorMsg:  err.Error(),
		})
		utils.Errorf("❌ [%s] 入库失败 [%s]: %v", w.config.Domain, rawURL, err)
		return
	}

	if w.history != nil {
		if err := w.history.Commit(rawURL); err != nil {
			utils.Warnf("⚠️ [%s] 历史落盘失败: %v", w.config.Domain, err)
		}
	}

	w.result.Stats.Emitted++
	if info != nil {
		w.result.Saved = append(w.result.Saved, *info)
	}
}

// release 归还占用的URL
func (w *DomainWorker) release(rawURL string) {
	if w.history != nil {
		w.history.Release(rawURL)
	}
}

// recordFailure 按错误类型记录失败
func (w *DomainWorker) recordFailure(rawURL string, err error) {
	errType := failureType(err)
	switch errType {
	case "extract":
		w.result.Stats.ExtractFailures++
	default:
		w.result.Stats.FetchFailures++
	}

	w.result.Failed = append(w.result.Failed, models.FailedURLInfo{
		URL:       rawURL,
		ErrorType: errType,
		ErrorMsg:  err.Error(),
	})
	utils.Warnf("⚠️ [%s] 抓取失败 [%s]: %v", w.config.Domain, rawURL, err)
}

// failureType 把流水线错误归类为报告用的错误类型
func failureType(err error) string {
	switch err.(type) {
	case *models.ExtractionError:
		return "extract"
	case *models.SitemapError:
		return "sitemap"
	case *models.FetchError:
		return "fetch"
	default:
		return "fetch"
	}
}

// sleepWithContext 可取消的休眠
// 被取消时返回false,调用方应立即停止
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
