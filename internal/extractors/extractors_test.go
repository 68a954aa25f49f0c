package extractors

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/NexoBot/internal/models"
)

// longPara 超过最小正文长度的测试段落
const longPara = "本文详细介绍了分布式爬虫系统的整体架构设计,包括任务调度、去重策略、限流控制和容错恢复等核心模块的实现思路与注意事项,并给出了若干生产环境中的调优经验。"

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("解析测试HTML失败: %v", err)
	}
	return doc
}

func TestChain_Dispatch(t *testing.T) {
	tests := []struct {
		name        string
		html        string
		wantContain string
		wantAbsent  string
	}{
		{
			name: "Elementor容器优先",
			html: `<html><head><title>t</title></head><body>
				<h1>Elementor文章</h1>
				<div class="elementor-widget-theme-post-content"><p>elementor正文` + longPara + `</p></div>
				<div class="entry-content"><p>decoy正文` + longPara + `</p></div>
			</body></html>`,
			wantContain: "elementor正文",
			wantAbsent:  "decoy正文",
		},
		{
			name: "WordPress容器次之",
			html: `<html><body>
				<h1>WordPress文章</h1>
				<div class="entry-content"><p>wordpress正文` + longPara + `</p></div>
				<article><p>decoy正文` + longPara + `</p></article>
			</body></html>`,
			wantContain: "wordpress正文",
			wantAbsent:  "decoy正文",
		},
		{
			name: "通用策略兜底",
			html: `<html><body>
				<h1>普通文章</h1>
				<article><p>generic正文` + longPara + `</p></article>
			</body></html>`,
			wantContain: "generic正文",
		},
	}

	chain := NewChain()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, tt.html)
			article, err := chain.Extract(doc, "https://example.com/blog/2024/post")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if !strings.Contains(article.Content, tt.wantContain) {
				t.Errorf("正文未包含 %q: %s", tt.wantContain, article.Content)
			}
			if tt.wantAbsent != "" && strings.Contains(article.Content, tt.wantAbsent) {
				t.Errorf("正文不应包含 %q", tt.wantAbsent)
			}
		})
	}
}

func TestWordPressStrategy_ContainerPriority(t *testing.T) {
	html := `<html><body>
		<h1>标题</h1>
		<div class="td-post-content"><p>低优先级容器` + longPara + `</p></div>
		<div class="entry-content"><p>标准容器` + longPara + `</p></div>
	</body></html>`

	s := NewWordPressStrategy()
	doc := docFromHTML(t, html)
	if !s.Matches(doc) {
		t.Fatal("Matches() = false, want true")
	}

	article, err := s.Extract(doc, "https://example.com/blog/2024/post")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(article.Content, "标准容器") {
		t.Errorf("应选择entry-content容器, 实际正文: %s", article.Content)
	}
	if strings.Contains(article.Content, "低优先级容器") {
		t.Error("不应选择td-post-content容器")
	}
}

func TestStrategy_Matches(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		html     string
		want     bool
	}{
		{"Elementor命中", NewElementorStrategy(), `<div class="elementor-widget-theme-post-content"></div>`, true},
		{"Elementor未命中", NewElementorStrategy(), `<div class="entry-content"></div>`, false},
		{"WordPress标准容器", NewWordPressStrategy(), `<div class="entry-content"></div>`, true},
		{"WordPress主题容器", NewWordPressStrategy(), `<div class="td-post-content"></div>`, true},
		{"WordPress未命中", NewWordPressStrategy(), `<article></article>`, false},
		{"通用策略永远命中", NewGenericStrategy(), `<p>anything</p>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, "<html><body>"+tt.html+"</body></html>")
			if got := tt.strategy.Matches(doc); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenericStrategy_ContentArea(t *testing.T) {
	tests := []struct {
		name        string
		html        string
		wantContain string
		wantAbsent  string
	}{
		{
			name: "取文本量最大的article",
			html: `<article><p>短文` + longPara + `</p></article>
				<article><p>长文` + longPara + longPara + `</p></article>`,
			wantContain: "长文",
			wantAbsent:  "短文",
		},
		{
			name: "content类div排除侧边栏",
			html: `<div class="sidebar-content"><p>侧边栏` + longPara + `</p></div>
				<div class="main-content"><p>正文区` + longPara + `</p></div>`,
			wantContain: "正文区",
			wantAbsent:  "侧边栏",
		},
		{
			name:        "main元素兜底",
			html:        `<nav><p>导航</p></nav><main><p>main正文` + longPara + `</p></main>`,
			wantContain: "main正文",
		},
		{
			name:        "body最终兜底",
			html:        `<p>裸段落` + longPara + `</p>`,
			wantContain: "裸段落",
		},
	}

	s := NewGenericStrategy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, "<html><body><h1>标题</h1>"+tt.html+"</body></html>")
			article, err := s.Extract(doc, "https://example.com/blog/2024/post")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if !strings.Contains(article.Content, tt.wantContain) {
				t.Errorf("正文未包含 %q: %s", tt.wantContain, article.Content)
			}
			if tt.wantAbsent != "" && strings.Contains(article.Content, tt.wantAbsent) {
				t.Errorf("正文不应包含 %q", tt.wantAbsent)
			}
		})
	}
}

func TestGenericStrategy_TitleFallback(t *testing.T) {
	html := `<html><head><title>页面标题兜底</title></head><body>
		<p>` + longPara + `</p>
	</body></html>`

	s := NewGenericStrategy()
	article, err := s.Extract(docFromHTML(t, html), "https://example.com/blog/2024/post")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if article.Title != "页面标题兜底" {
		t.Errorf("Title = %q, want 页面标题兜底", article.Title)
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "h1优先",
			html: `<head><meta property="og:title" content="OG标题"></head><body><h1> H1标题 </h1></body>`,
			want: "H1标题",
		},
		{
			name: "空h1回退og:title",
			html: `<head><meta property="og:title" content="OG标题"></head><body><h1>  </h1></body>`,
			want: "OG标题",
		},
		{
			name: "都没有返回空",
			html: `<body><p>无标题页面</p></body>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, "<html>"+tt.html+"</html>")
			if got := extractTitle(doc); got != tt.want {
				t.Errorf("extractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildArticle_Errors(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{
			name: "正文太短",
			html: `<html><body><h1>有标题</h1><article><p>太短</p></article></body></html>`,
		},
		{
			name: "无标题无正文",
			html: `<html><body><div></div></body></html>`,
		},
	}

	chain := NewChain()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chain.Extract(docFromHTML(t, tt.html), "https://example.com/blog/2024/post")
			if err == nil {
				t.Fatal("Extract() error = nil, want *models.ExtractionError")
			}
			var extractErr *models.ExtractionError
			if !errors.As(err, &extractErr) {
				t.Errorf("错误类型 = %T, want *models.ExtractionError", err)
			}
		})
	}
}

func TestExtractTags(t *testing.T) {
	longTag := strings.Repeat("x", 60)
	html := `<html><head>
		<meta name="keywords" content="go, web, go">
		<meta property="article:tag" content="crawler">
		<meta property="article:tag" content="web">
	</head><body>
		<a rel="tag" href="/tag/parsing">parsing</a>
		<div class="post-tags">
			<a href="/tag/scraping">scraping</a>
			<a href="/tag/long">` + longTag + `</a>
			<a href="/tag/go">go</a>
		</div>
	</body></html>`

	got := extractTags(docFromHTML(t, html))
	want := []string{"go", "web", "crawler", "parsing", "scraping"}

	if len(got) != len(want) {
		t.Fatalf("extractTags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("第 %d 个标签 = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractArticleInfo(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		wantAuthor   string
		wantCategory string
		wantDate     string
	}{
		{
			name: "完整元信息",
			html: `<head><meta property="article:published_time" content="2024-06-01T08:00:00+07:00"></head>
				<body>
				<a class="author-name" href="/author/budi">Budi Santoso</a>
				<a rel="category tag" href="/cat/tech">Teknologi</a>
				<p>发布于 Maret 15, 2024</p>
				</body>`,
			wantAuthor:   "Budi Santoso",
			wantCategory: "Teknologi",
			wantDate:     "2024-06-01T08:00:00+07:00",
		},
		{
			name: "正文日期兜底",
			html: `<body><p>Diterbitkan pada Maret 15, 2024 oleh admin</p></body>`,
			wantAuthor:   models.UnknownField,
			wantCategory: models.UnknownField,
			wantDate:     "Maret 15, 2024",
		},
		{
			name: "英语月份日期",
			html: `<body><p>Published on March 5, 2023</p></body>`,
			wantAuthor:   models.UnknownField,
			wantCategory: models.UnknownField,
			wantDate:     "March 5, 2023",
		},
		{
			name: "分类class兜底",
			html: `<body><a class="cat-link category" href="/cat/news">News</a></body>`,
			wantAuthor:   models.UnknownField,
			wantCategory: "News",
			wantDate:     models.UnknownField,
		},
		{
			name:         "全部缺失保持占位值",
			html:         `<body><p>什么都没有的页面</p></body>`,
			wantAuthor:   models.UnknownField,
			wantCategory: models.UnknownField,
			wantDate:     models.UnknownField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, "<html>"+tt.html+"</html>")
			author, category, date := extractArticleInfo(doc)
			if author != tt.wantAuthor {
				t.Errorf("author = %q, want %q", author, tt.wantAuthor)
			}
			if category != tt.wantCategory {
				t.Errorf("category = %q, want %q", category, tt.wantCategory)
			}
			if date != tt.wantDate {
				t.Errorf("date = %q, want %q", date, tt.wantDate)
			}
		})
	}
}

func TestExtractContentHTML(t *testing.T) {
	html := `<html><body><div id="area">
		<p>Tom &amp; Jerry &lt;3</p>
		<script>var x = 1;</script>
		<style>.a{}</style>
		<h2>小节标题</h2>
		<p>   </p>
		<ul><li>第一项</li><li>第二项</li></ul>
		<table><tr><th>名称</th><th>数量</th></tr><tr><td>A</td><td>1</td></tr></table>
		<blockquote>引用内容</blockquote>
	</div></body></html>`

	doc := docFromHTML(t, html)
	got := extractContentHTML(doc.Find("#area"))

	wantParts := []string{
		"<p>Tom &amp; Jerry &lt;3</p>",
		"<h2>小节标题</h2>",
		"<ul><li>第一项</li><li>第二项</li></ul>",
		"<table><tr><td>名称</td><td>数量</td></tr><tr><td>A</td><td>1</td></tr></table>",
		"<blockquote>引用内容</blockquote>",
	}
	for _, part := range wantParts {
		if !strings.Contains(got, part) {
			t.Errorf("重建HTML缺少 %q:\n%s", part, got)
		}
	}

	if strings.Contains(got, "var x") || strings.Contains(got, ".a{}") {
		t.Error("脚本或样式内容不应进入重建HTML")
	}
	if strings.Contains(got, "<p></p>") {
		t.Error("空段落应被丢弃")
	}
}

func TestExtractSections(t *testing.T) {
	html := `<html><body><div id="area">
		<p>引言第一段</p>
		<p>引言第二段</p>
		<h2>安装步骤</h2>
		<p>先下载安装包</p>
		<ul><li>解压</li><li>运行</li></ul>
		<h3>常见问题</h3>
		<table><tr><td>问题</td><td>解法</td></tr></table>
		<h2>使用说明</h2>
		<p>按文档操作即可</p>
		<h2>空小节</h2>
	</div></body></html>`

	doc := docFromHTML(t, html)
	sections := extractSections(doc.Find("#area"))

	if len(sections) != 3 {
		t.Fatalf("小节数 = %d, want 3 (引言+2个h2小节)", len(sections))
	}

	intro := sections[0]
	if intro.Level != 0 || intro.Heading != "" {
		t.Errorf("引言小节 Level=%d Heading=%q, want Level=0 Heading=空", intro.Level, intro.Heading)
	}
	if !strings.Contains(intro.Content, "引言第一段") || !strings.Contains(intro.Content, "引言第二段") {
		t.Errorf("引言内容不完整: %q", intro.Content)
	}

	first := sections[1]
	if first.Heading != "安装步骤" || first.Level != 2 {
		t.Errorf("第一小节 Heading=%q Level=%d", first.Heading, first.Level)
	}
	if !strings.Contains(first.Content, "先下载安装包") {
		t.Errorf("第一小节缺少段落: %q", first.Content)
	}
	if !strings.Contains(first.Content, "  • 解压") || !strings.Contains(first.Content, "  • 运行") {
		t.Errorf("列表项未渲染为项目符号行: %q", first.Content)
	}
	if !strings.Contains(first.Content, "### 常见问题") {
		t.Errorf("h3未折叠进当前小节: %q", first.Content)
	}
	if !strings.Contains(first.Content, "问题 | 解法") {
		t.Errorf("表格未渲染为竖线分隔行: %q", first.Content)
	}

	second := sections[2]
	if second.Heading != "使用说明" {
		t.Errorf("第二小节 Heading=%q, want 使用说明", second.Heading)
	}
	if !strings.Contains(second.Content, "按文档操作即可") {
		t.Errorf("第二小节内容不完整: %q", second.Content)
	}
}

func TestExtractMetaDescription(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "meta description优先",
			html: `<meta name="description" content="普通描述"><meta property="og:description" content="OG描述">`,
			want: "普通描述",
		},
		{
			name: "og:description兜底",
			html: `<meta property="og:description" content="OG描述">`,
			want: "OG描述",
		},
		{
			name: "没有描述",
			html: ``,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, "<html><head>"+tt.html+"</head><body></body></html>")
			if got := extractMetaDescription(doc); got != tt.want {
				t.Errorf("extractMetaDescription() = %q, want %q", got, tt.want)
			}
		})
	}
}
