package extractors

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/RecoveryAshes/NexoBot/internal/models"
)

// excludeClassFragments 模糊匹配内容div时排除的class片段
// 目录、侧边栏、导航等结构性区域不能当作正文
var excludeClassFragments = []string{
	"toc", "table-of-contents", "widget", "sidebar",
	"menu", "nav", "header", "footer", "related", "comment",
}

// GenericStrategy 通用启发式提取策略,策略链的兜底
// 预检永远命中,内容区域按启发式顺序选取:
// 最大的<article>元素 > class含"content"的div > <main> > <body>
type GenericStrategy struct{}

// NewGenericStrategy 创建通用提取策略
func NewGenericStrategy() *GenericStrategy {
	return &GenericStrategy{}
}

// Name 策略名称
func (s *GenericStrategy) Name() string {
	return "generic"
}

// Matches 通用策略永远命中
func (s *GenericStrategy) Matches(doc *goquery.Document) bool {
	return true
}

// Extract 按启发式顺序选取内容区域执行提取
// 标题来源比其它策略多一层<title>兜底
func (s *GenericStrategy) Extract(doc *goquery.Document, pageURL string) (*models.Article, error) {
	title := extractTitle(doc)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return buildArticle(doc, s.findContentArea(doc), pageURL, title)
}

// findContentArea 选取最可能是正文的区域
func (s *GenericStrategy) findContentArea(doc *goquery.Document) *goquery.Selection {
	// 优先: 可见文本量最大的<article>元素
	var best *goquery.Selection
	bestLen := -1
	doc.Find("article").Each(func(_ int, sel *goquery.Selection) {
		n := 0
		for _, node := range sel.Nodes {
			n += visibleTextLen(node)
		}
		if n > bestLen {
			best = sel
			bestLen = n
		}
	})
	if best != nil {
		return best
	}

	// 其次: class含"content"且不属于排除类的div
	var fuzzy *goquery.Selection
	doc.Find("div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if isContentDiv(sel) {
			fuzzy = sel
			return false
		}
		return true
	})
	if fuzzy != nil {
		return fuzzy
	}

	// 兜底: <main>或<body>
	if m := doc.Find("main").First(); m.Length() > 0 {
		return m
	}
	return doc.Find("body").First()
}

// visibleTextLen 统计节点树的可见文本长度
// script/style等不渲染的文本不参与统计
func visibleTextLen(n *html.Node) int {
	if n == nil {
		return 0
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return 0
		}
	}
	if n.Type == html.TextNode {
		return len(strings.TrimSpace(n.Data))
	}
	total := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		total += visibleTextLen(c)
	}
	return total
}

// isContentDiv 判断div是否像正文容器
func isContentDiv(s *goquery.Selection) bool {
	class, exists := s.Attr("class")
	if !exists {
		return false
	}

	lower := strings.ToLower(class)
	if !strings.Contains(lower, "content") {
		return false
	}
	for _, fragment := range excludeClassFragments {
		if strings.Contains(lower, fragment) {
			return false
		}
	}
	return true
}
