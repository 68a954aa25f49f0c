package extractors

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/NexoBot/internal/models"
)

// elementorContainer Elementor页面构建器的正文容器
const elementorContainer = "div.elementor-widget-theme-post-content"

// ElementorStrategy 针对Elementor构建的站点的提取策略
type ElementorStrategy struct{}

// NewElementorStrategy 创建Elementor提取策略
func NewElementorStrategy() *ElementorStrategy {
	return &ElementorStrategy{}
}

// Name 策略名称
func (s *ElementorStrategy) Name() string {
	return "elementor"
}

// Matches 判断页面是否含Elementor正文容器
func (s *ElementorStrategy) Matches(doc *goquery.Document) bool {
	return doc.Find(elementorContainer).Length() > 0
}

// Extract 以Elementor容器为内容区域执行提取
func (s *ElementorStrategy) Extract(doc *goquery.Document, pageURL string) (*models.Article, error) {
	area := doc.Find(elementorContainer).First()
	return buildArticle(doc, area, pageURL, extractTitle(doc))
}
