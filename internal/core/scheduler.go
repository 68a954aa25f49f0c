package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/NexoBot/internal/crawlers"
	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
)

// DrainTimeout 停止信号后等待在途任务收尾的最长时间
const DrainTimeout = 10 * time.Second

// WorkerPool 域名工作器调度池
// 把种子URL按域名分组,每个域名一个独立工作器并发运行,
// 工作器之间不共享队列,互相的快慢和失败互不影响
type WorkerPool struct {
	config  *Config
	headers models.HeaderProvider
	sink    models.ArticleSink
	monitor *crawlers.ResourceMonitor
}

// NewWorkerPool 创建调度池
// headers可为nil(使用默认头部)
func NewWorkerPool(config *Config, headers models.HeaderProvider, sink models.ArticleSink) *WorkerPool {
	return &WorkerPool{
		config:  config,
		headers: headers,
		sink:    sink,
	}
}

// indexedResult 带分组序号的工作器结果,用于保持报告顺序稳定
type indexedResult struct {
	idx int
	res *WorkerResult
}

// Run 启动所有域名工作器并等待结束
// worker模式下阻塞到ctx取消为止,一次性模式在所有域名处理完后返回。
// 返回聚合后的运行报告
func (p *WorkerPool) Run(ctx context.Context) (*models.RunReport, error) {
	urls := p.config.Scrape.URLs
	if len(urls) == 0 {
		return nil, &models.ConfigError{Cause: fmt.Errorf("没有配置任何种子URL")}
	}

	domains, byDomain := PartitionByDomain(urls)
	if len(domains) == 0 {
		return nil, &models.ConfigError{Cause: fmt.Errorf("种子URL全部无效, 无法提取域名")}
	}
	utils.Infof("🌐 %d 个种子URL按域名分为 %d 组", len(urls), len(domains))

	// 资源监控只在常驻模式下运行,给长期驻留的进程一个观察窗口
	if p.config.Scrape.WorkerMode {
		p.monitor = crawlers.NewResourceMonitor(p.config.GetResourceMonitorConfig())
		p.monitor.StartMonitoring(time.Duration(p.config.Resource.MonitorInterval) * time.Second)
		defer p.monitor.StopMonitoring()

		// 监控只提建议,不会强行减少工作器
		if rec := p.monitor.RecommendedWorkers(); rec < len(domains) {
			utils.Warnf("⚠️ 配置了 %d 个域名, 按当前资源状况建议不超过 %d 个并发工作器", len(domains), rec)
		}
	}

	var history *HistoryManager
	if p.config.Scrape.PreventDuplicates {
		history = NewHistoryManager(p.config.Scrape.HistoryFile)
	}

	report := models.NewRunReport(p.config.Scrape.WorkerMode, p.config.Scrape.OutputFormat, p.config.Output.Dir)

	resultCh := make(chan indexedResult, len(domains))
	var wg sync.WaitGroup

	for i, domain := range domains {
		worker := NewDomainWorker(WorkerConfig{
			Domain:            domain,
			Seeds:             byDomain[domain],
			WorkerMode:        p.config.Scrape.WorkerMode,
			CycleDelay:        p.config.Scrape.CycleDelay,
			MaxArticles:       p.config.EffectiveMaxArticles(),
			PreventDuplicates: p.config.Scrape.PreventDuplicates,
		}, p.newDomainScraper(), p.sink, history)

		wg.Add(1)
		go func(idx int, w *DomainWorker) {
			defer wg.Done()
			resultCh <- indexedResult{idx: idx, res: w.Run(ctx)}
		}(i, worker)
	}

	p.waitForWorkers(ctx, &wg)

	// 只收已完成工作器的结果,收尾超时的滞后结果会留在缓冲里被丢弃
	collected := make([]*WorkerResult, len(domains))
	for {
		select {
		case r := <-resultCh:
			collected[r.idx] = r.res
			continue
		default:
		}
		break
	}

	for _, r := range collected {
		if r == nil {
			continue
		}
		report.Domains = append(report.Domains, r.Stats)
		report.SavedFiles = append(report.SavedFiles, r.Saved...)
		report.FailedURLs = append(report.FailedURLs, r.Failed...)
	}
	report.Finish()

	utils.Infof("🏁 全部工作器结束: 入库 %d 篇, 失败 %d 个, 耗时 %.1f 秒",
		report.TotalEmitted(), report.TotalFailed(), report.Duration)
	return report, nil
}

// newDomainScraper 为单个工作器构建独立的抓取流水线
// 独立实例保证各域名的请求间隔互不干扰
func (p *WorkerPool) newDomainScraper() *Scraper {
	return NewScraper(ScraperOptions{
		Timeout:        p.config.Scrape.Timeout,
		Delay:          p.config.Scrape.Delay,
		MinDepth:       p.config.Scrape.MinDepth,
		SkipValidation: p.config.Scrape.SkipValidation,
		Headers:        p.headers,
	})
}

// waitForWorkers 等待所有工作器退出
// ctx取消后给在途的抓取和入库最多DrainTimeout时间收尾,不会立刻掐断
func (p *WorkerPool) waitForWorkers(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		utils.Infof("🧹 收到停止信号, 等待在途任务收尾 (最多 %s)", DrainTimeout)
	}

	select {
	case <-done:
	case <-time.After(DrainTimeout):
		utils.Warnf("⚠️ 收尾超时, 放弃等待剩余任务")
	}
}

// PartitionByDomain 把URL列表按域名分组
// 域名按首次出现的顺序排列,组内保持原始顺序,无法解析域名的URL被丢弃
func PartitionByDomain(urls []string) ([]string, map[string][]string) {
	domains := make([]string, 0)
	byDomain := make(map[string][]string)

	for _, rawURL := range urls {
		domain := models.ExtractDomain(rawURL)
		if domain == "" {
			utils.Warnf("⚠️ 无法从URL提取域名, 跳过: %s", rawURL)
			continue
		}

		if _, ok := byDomain[domain]; !ok {
			domains = append(domains, domain)
		}
		byDomain[domain] = append(byDomain[domain], rawURL)
	}

	return domains, byDomain
}
