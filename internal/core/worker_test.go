package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/NexoBot/internal/models"
)

// articlePage 能通过提取的最小文章页面
const articlePage = `<html><head><title>%s</title></head><body>
<h1>%s</h1>
<div class="entry-content"><p>这是用于测试的文章正文段落,内容足够长以通过最小正文长度检查。这段文字覆盖了抓取流水线端到端的行为,包括抓取、提取和入库的完整链路,以及失败时的重试语义。</p></div>
</body></html>`

// testSite 模拟带sitemap的文章站点
// sitemap里的路径在渲染时拼上请求方使用的Host,
// 同一个站点可以同时用127.0.0.1和localhost两个"域名"访问
type testSite struct {
	mu        sync.Mutex
	hits      map[string]int
	sitemap   []string          // 出现在sitemap里的路径
	articles  map[string]string // 文章路径 -> 标题
	broken    map[string]bool   // 返回500的路径
	noSitemap bool
	server    *httptest.Server
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{
		hits:     make(map[string]int),
		articles: make(map[string]string),
		broken:   make(map[string]bool),
	}
	site.server = httptest.NewServer(http.HandlerFunc(site.handle))
	t.Cleanup(site.server.Close)
	return site
}

// addArticle 注册一篇文章并加入sitemap
func (s *testSite) addArticle(path, title string) {
	s.articles[path] = title
	s.sitemap = append(s.sitemap, path)
}

func (s *testSite) url(path string) string {
	return s.server.URL + path
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	broken := s.broken[r.URL.Path]
	title, isArticle := s.articles[r.URL.Path]
	sitemapPaths := append([]string(nil), s.sitemap...)
	s.mu.Unlock()

	if broken {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if r.URL.Path == "/sitemap.xml" && !s.noSitemap {
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
		for _, path := range sitemapPaths {
			b.WriteString("<url><loc>http://" + r.Host + path + "</loc></url>")
		}
		b.WriteString(`</urlset>`)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, b.String())
		return
	}

	if isArticle {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, articlePage, title, title)
		return
	}

	http.NotFound(w, r)
}

// stubSink 记录每次Emit的测试sink
type stubSink struct {
	mu          sync.Mutex
	emitted     []string
	failFor     map[string]bool
	onFirstEmit func()
	firstOnce   sync.Once
}

func newStubSink() *stubSink {
	return &stubSink{failFor: make(map[string]bool)}
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) Emit(ctx context.Context, article *models.Article) (*models.SavedFileInfo, error) {
	s.mu.Lock()
	fail := s.failFor[article.URL]
	if !fail {
		s.emitted = append(s.emitted, article.URL)
	}
	s.mu.Unlock()

	if fail {
		return nil, errors.New("模拟入库失败")
	}

	if s.onFirstEmit != nil {
		s.firstOnce.Do(s.onFirstEmit)
	}
	return &models.SavedFileInfo{
		URL:      article.URL,
		Title:    article.Title,
		FilePath: "stub/" + article.ID + ".json",
		Format:   "json",
		SavedAt:  time.Now(),
	}, nil
}

func (s *stubSink) emittedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.emitted...)
}

// newTestScraper 无延迟的测试用抓取流水线
func newTestScraper() *Scraper {
	return NewScraper(ScraperOptions{Timeout: 5, MinDepth: 3})
}

func TestDomainWorker_SitemapSeed(t *testing.T) {
	site := newTestSite(t)
	site.addArticle("/blog/2024/post-1", "第一篇")
	site.addArticle("/blog/2024/post-2", "第二篇")
	site.addArticle("/blog/2024/post-3", "第三篇")
	site.sitemap = append(site.sitemap, "/category/news")

	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain: "127.0.0.1",
		Seeds:  []string{site.url("/sitemap.xml")},
	}, newTestScraper(), sink, nil)

	result := worker.Run(context.Background())

	if result.Stats.SitemapURLs != 4 {
		t.Errorf("SitemapURLs = %d, want 4", result.Stats.SitemapURLs)
	}
	if result.Stats.SkippedInvalid != 1 {
		t.Errorf("SkippedInvalid = %d, want 1 (分类页)", result.Stats.SkippedInvalid)
	}
	if result.Stats.Emitted != 3 {
		t.Errorf("Emitted = %d, want 3", result.Stats.Emitted)
	}
	if result.Stats.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", result.Stats.Cycles)
	}
	if len(result.Saved) != 3 {
		t.Errorf("Saved数量 = %d, want 3", len(result.Saved))
	}
	if got := sink.emittedURLs(); len(got) != 3 || got[0] != site.url("/blog/2024/post-1") {
		t.Errorf("入库顺序应与sitemap文档顺序一致: %v", got)
	}
	if site.hitCount("/category/news") != 0 {
		t.Error("被形态校验拒绝的URL不应被抓取")
	}
}

func TestDomainWorker_DirectSeeds(t *testing.T) {
	site := newTestSite(t)
	site.articles["/blog/2024/post-1"] = "正常文章"
	site.articles["/landing"] = "落地页"

	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain: "127.0.0.1",
		Seeds:  []string{site.url("/blog/2024/post-1"), site.url("/landing")},
	}, newTestScraper(), sink, nil)

	result := worker.Run(context.Background())

	// 配置进来的种子不做形态校验,浅路径的落地页同样要抓
	if result.Stats.Emitted != 2 {
		t.Errorf("Emitted = %d, want 2", result.Stats.Emitted)
	}
	if result.Stats.SkippedInvalid != 0 {
		t.Errorf("SkippedInvalid = %d, want 0", result.Stats.SkippedInvalid)
	}
}

func TestDomainWorker_RootDiscovery(t *testing.T) {
	site := newTestSite(t)
	site.addArticle("/blog/2024/post-1", "第一篇")
	site.addArticle("/blog/2024/post-2", "第二篇")

	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain: "127.0.0.1",
		Seeds:  []string{site.server.URL},
	}, newTestScraper(), sink, nil)

	result := worker.Run(context.Background())

	if result.Stats.Emitted != 2 {
		t.Errorf("根域名种子应通过sitemap发现抓到2篇, Emitted = %d", result.Stats.Emitted)
	}
	if site.hitCount("/sitemap.xml") == 0 {
		t.Error("应探测并解析sitemap.xml")
	}
}

func TestDomainWorker_RootDiscoveryFallback(t *testing.T) {
	site := newTestSite(t)
	site.noSitemap = true
	site.articles["/"] = "根页面文章"

	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain: "127.0.0.1",
		Seeds:  []string{site.server.URL},
	}, newTestScraper(), sink, nil)

	result := worker.Run(context.Background())

	// 发现不了sitemap时根页面本身按文章抓一次
	if result.Stats.Emitted != 1 {
		t.Errorf("Emitted = %d, want 1 (根页面降级抓取)", result.Stats.Emitted)
	}
	if got := sink.emittedURLs(); len(got) != 1 || got[0] != site.server.URL {
		t.Errorf("入库URL = %v, want 根页面", got)
	}
}

func TestDomainWorker_SitemapFailure(t *testing.T) {
	site := newTestSite(t)
	site.broken["/sitemap.xml"] = true

	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain: "127.0.0.1",
		Seeds:  []string{site.url("/sitemap.xml")},
	}, newTestScraper(), sink, nil)

	result := worker.Run(context.Background())

	if result.Stats.Emitted != 0 {
		t.Errorf("Emitted = %d, want 0", result.Stats.Emitted)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("Failed数量 = %d, want 1", len(result.Failed))
	}
	if result.Failed[0].ErrorType != "sitemap" {
		t.Errorf("ErrorType = %q, want sitemap", result.Failed[0].ErrorType)
	}
}

func TestDomainWorker_FetchFailureRetryable(t *testing.T) {
	site := newTestSite(t)
	site.addArticle("/blog/2024/post-1", "正常文章")
	site.addArticle("/blog/2024/broken-1", "坏文章")
	site.broken["/blog/2024/broken-1"] = true

	history := NewHistoryManager(tempHistoryPath(t))
	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain:            "127.0.0.1",
		Seeds:             []string{site.url("/sitemap.xml")},
		PreventDuplicates: true,
	}, newTestScraper(), sink, history)

	result := worker.Run(context.Background())

	if result.Stats.Emitted != 1 {
		t.Errorf("Emitted = %d, want 1", result.Stats.Emitted)
	}
	if result.Stats.FetchFailures != 1 {
		t.Errorf("FetchFailures = %d, want 1", result.Stats.FetchFailures)
	}

	// 成功的URL入史,失败的归还占用,下一轮还能重试
	if !history.IsScraped(site.url("/blog/2024/post-1")) {
		t.Error("成功入库的URL应记入历史")
	}
	if history.IsScraped(site.url("/blog/2024/broken-1")) {
		t.Error("抓取失败的URL不应记入历史")
	}
	if !history.Claim(site.url("/blog/2024/broken-1")) {
		t.Error("抓取失败的URL应已归还占用")
	}
}

func TestDomainWorker_SinkFailureLeavesUnseen(t *testing.T) {
	site := newTestSite(t)
	site.addArticle("/blog/2024/post-1", "第一篇")

	history := NewHistoryManager(tempHistoryPath(t))
	sink := newStubSink()
	sink.failFor[site.url("/blog/2024/post-1")] = true

	worker := NewDomainWorker(WorkerConfig{
		Domain:            "127.0.0.1",
		Seeds:             []string{site.url("/sitemap.xml")},
		PreventDuplicates: true,
	}, newTestScraper(), sink, history)

	result := worker.Run(context.Background())

	if result.Stats.SinkFailures != 1 {
		t.Errorf("SinkFailures = %d, want 1", result.Stats.SinkFailures)
	}
	if result.Stats.Emitted != 0 {
		t.Errorf("Emitted = %d, want 0", result.Stats.Emitted)
	}
	if history.IsScraped(site.url("/blog/2024/post-1")) {
		t.Error("入库失败的URL不应记入历史")
	}
	if !history.Claim(site.url("/blog/2024/post-1")) {
		t.Error("入库失败的URL应已归还占用")
	}
}

func TestDomainWorker_HistorySkip(t *testing.T) {
	site := newTestSite(t)
	site.addArticle("/blog/2024/post-1", "旧文章")
	site.addArticle("/blog/2024/post-2", "新文章")

	history := NewHistoryManager(tempHistoryPath(t))
	if err := history.Commit(site.url("/blog/2024/post-1")); err != nil {
		t.Fatalf("预置历史失败: %v", err)
	}

	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain:            "127.0.0.1",
		Seeds:             []string{site.url("/sitemap.xml")},
		PreventDuplicates: true,
	}, newTestScraper(), sink, history)

	result := worker.Run(context.Background())

	if result.Stats.SkippedSeen != 1 {
		t.Errorf("SkippedSeen = %d, want 1", result.Stats.SkippedSeen)
	}
	if result.Stats.Emitted != 1 {
		t.Errorf("Emitted = %d, want 1", result.Stats.Emitted)
	}
	if site.hitCount("/blog/2024/post-1") != 0 {
		t.Error("已入库的URL不应重新抓取")
	}
}

func TestDomainWorker_MaxArticles(t *testing.T) {
	site := newTestSite(t)
	for i := 1; i <= 5; i++ {
		site.addArticle(fmt.Sprintf("/blog/2024/post-%d", i), fmt.Sprintf("第%d篇", i))
	}

	sink := newStubSink()
	worker := NewDomainWorker(WorkerConfig{
		Domain:      "127.0.0.1",
		Seeds:       []string{site.url("/sitemap.xml")},
		MaxArticles: 2,
	}, newTestScraper(), sink, nil)

	result := worker.Run(context.Background())

	if result.Stats.SitemapURLs != 2 {
		t.Errorf("SitemapURLs = %d, want 2 (按文档顺序截取)", result.Stats.SitemapURLs)
	}
	if result.Stats.Emitted != 2 {
		t.Errorf("Emitted = %d, want 2", result.Stats.Emitted)
	}
	want := []string{site.url("/blog/2024/post-1"), site.url("/blog/2024/post-2")}
	got := sink.emittedURLs()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("截取应取最前面的条目: got %v, want %v", got, want)
	}
}

func TestDomainWorker_WorkerModeCancel(t *testing.T) {
	site := newTestSite(t)
	site.addArticle("/blog/2024/post-1", "第一篇")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := newStubSink()
	sink.onFirstEmit = cancel

	worker := NewDomainWorker(WorkerConfig{
		Domain:     "127.0.0.1",
		Seeds:      []string{site.url("/sitemap.xml")},
		WorkerMode: true,
		CycleDelay: 60,
	}, newTestScraper(), sink, nil)

	resultCh := make(chan *WorkerResult, 1)
	go func() { resultCh <- worker.Run(ctx) }()

	select {
	case result := <-resultCh:
		if result.Stats.Cycles != 1 {
			t.Errorf("Cycles = %d, want 1 (取消后不应进入下一轮)", result.Stats.Cycles)
		}
		if result.Stats.Emitted < 1 {
			t.Errorf("Emitted = %d, want >=1", result.Stats.Emitted)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("取消后工作器未及时停止")
	}
}
