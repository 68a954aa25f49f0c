package extractors

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/NexoBot/internal/models"
)

// wordpressContainers WordPress及常见主题的正文容器,按优先级排列
var wordpressContainers = []string{
	"div.entry-content",       // WordPress标准
	"div.post-content",        // 通用博客主题
	"div.article-content",     // 通用文章主题
	"div.td-post-content",     // Newspaper系主题
	"div.blog-post-content",   // 通用
	"div.single-post-content", // 单文章页主题
}

// WordPressStrategy 针对WordPress系站点的提取策略
type WordPressStrategy struct{}

// NewWordPressStrategy 创建WordPress提取策略
func NewWordPressStrategy() *WordPressStrategy {
	return &WordPressStrategy{}
}

// Name 策略名称
func (s *WordPressStrategy) Name() string {
	return "wordpress"
}

// Matches 判断页面是否含任一约定的正文容器
func (s *WordPressStrategy) Matches(doc *goquery.Document) bool {
	for _, selector := range wordpressContainers {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

// Extract 按容器优先级选择内容区域执行提取
func (s *WordPressStrategy) Extract(doc *goquery.Document, pageURL string) (*models.Article, error) {
	var area *goquery.Selection
	for _, selector := range wordpressContainers {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			area = sel
			break
		}
	}
	return buildArticle(doc, area, pageURL, extractTitle(doc))
}
