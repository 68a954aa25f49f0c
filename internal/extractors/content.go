package extractors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/NexoBot/internal/models"
)

// maxTagLength 标签容器内链接文本的长度上限,超过的按噪声丢弃
const maxTagLength = 50

// datePattern 识别"月份 日, 年"形态的发布日期(印尼语和英语月份)
var datePattern = regexp.MustCompile(
	`(Januari|Februari|Maret|April|Mei|Juni|Juli|Agustus|September|Oktober|November|Desember|` +
		`January|February|March|May|June|July|August|October|December)\s+\d{1,2},\s+\d{4}`)

// htmlTextEscaper 重建HTML时转义文本里的特殊字符
var htmlTextEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// buildArticle 在选定的内容区域上执行共享提取流程
// 元数据取自整个文档,正文和小节取自内容区域
// 正文总长度不足时返回*models.ExtractionError
func buildArticle(doc *goquery.Document, area *goquery.Selection, pageURL, title string) (*models.Article, error) {
	article := models.NewArticle(pageURL)
	article.Title = title
	article.MetaDescription = extractMetaDescription(doc)
	article.Tags = extractTags(doc)

	author, category, date := extractArticleInfo(doc)
	article.Author = author
	article.Category = category
	article.PublishDate = date

	if area != nil && area.Length() > 0 {
		article.Content = extractContentHTML(area)
		article.Sections = extractSections(area)
	}

	// 标题和正文都找不到说明页面本身有问题,不是结构不匹配
	if strings.TrimSpace(article.Title) == "" && article.ContentLength() == 0 {
		return nil, &models.ExtractionError{URL: pageURL, Reason: "找不到标题和正文"}
	}
	if n := article.ContentLength(); n < models.MinContentLength {
		return nil, &models.ExtractionError{
			URL:    pageURL,
			Reason: fmt.Sprintf("正文太短 (%d < %d)", n, models.MinContentLength),
		}
	}

	return article, nil
}

// extractTitle 提取标题: 第一个h1优先,og:title兜底
func extractTitle(doc *goquery.Document) string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if title := strings.TrimSpace(h1.Text()); title != "" {
			return title
		}
	}
	return metaContent(doc, `meta[property="og:title"]`)
}

// extractMetaDescription 提取页面描述: meta description优先,og:description兜底
func extractMetaDescription(doc *goquery.Document) string {
	if desc := metaContent(doc, `meta[name="description"]`); desc != "" {
		return desc
	}
	return metaContent(doc, `meta[property="og:description"]`)
}

// extractArticleInfo 提取作者、分类和发布日期
// 页面上找不到的字段保持"Unknown"占位值
func extractArticleInfo(doc *goquery.Document) (author, category, date string) {
	author = models.UnknownField
	category = models.UnknownField
	date = models.UnknownField

	// 作者: 第一个class含"author"的链接
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !classContains(s, "author") {
			return true
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			author = text
			return false
		}
		return true
	})

	// 分类: WordPress约定的rel属性优先,class含"category"的链接兜底
	if cat := doc.Find(`a[rel="category tag"]`).First(); cat.Length() > 0 {
		if text := strings.TrimSpace(cat.Text()); text != "" {
			category = text
		}
	}
	if category == models.UnknownField {
		doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !classContains(s, "category") {
				return true
			}
			if text := strings.TrimSpace(s.Text()); text != "" {
				category = text
				return false
			}
			return true
		})
	}

	// 日期: article:published_time元数据优先,正文里的日期字符串兜底
	if published := metaContent(doc, `meta[property="article:published_time"]`); published != "" {
		date = published
	} else if match := datePattern.FindString(doc.Text()); match != "" {
		date = match
	}

	return author, category, date
}

// extractTags 合并四个来源提取标签,按首次出现顺序去重
//
//	A: meta keywords (逗号分隔)
//	B: meta article:tag
//	C: rel=tag链接
//	D: class含"tag"的div/span/ul容器内的链接
func extractTags(doc *goquery.Document) []string {
	var tags []string
	seen := make(map[string]bool)

	addTag := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	// 来源A: meta keywords
	if keywords := metaContent(doc, `meta[name="keywords"]`); keywords != "" {
		for _, kw := range strings.Split(keywords, ",") {
			addTag(kw)
		}
	}

	// 来源B: meta article:tag
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			addTag(content)
		}
	})

	// 来源C: 可见的rel=tag链接
	doc.Find("a[rel~=tag]").Each(func(_ int, s *goquery.Selection) {
		addTag(s.Text())
	})

	// 来源D: 标签容器内的链接,超长文本按噪声丢弃
	doc.Find("div, span, ul").Each(func(_ int, container *goquery.Selection) {
		if !classContains(container, "tag") {
			return
		}
		container.Find("a").Each(func(_ int, link *goquery.Selection) {
			if text := strings.TrimSpace(link.Text()); text != "" && len(text) < maxTagLength {
				addTag(text)
			}
		})
	})

	return tags
}

// extractContentHTML 把内容区域重建为只含白名单标签的干净HTML
// 脚本、样式、导航等都不会进入结果,文本内容做HTML转义
func extractContentHTML(area *goquery.Selection) string {
	var parts []string

	area.Find("p, h2, h3, h4, ul, ol, table, blockquote").Each(func(_ int, s *goquery.Selection) {
		if elem := cleanHTMLElement(s); elem != "" {
			parts = append(parts, elem)
		}
	})

	return strings.Join(parts, "\n")
}

// cleanHTMLElement 把单个元素重建为纯文本HTML
func cleanHTMLElement(s *goquery.Selection) string {
	tag := goquery.NodeName(s)

	switch tag {
	case "p", "h2", "h3", "h4", "blockquote":
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return ""
		}
		return fmt.Sprintf("<%s>%s</%s>", tag, htmlTextEscaper.Replace(text), tag)

	case "ul", "ol":
		var items []string
		s.Find("li").Each(func(_ int, li *goquery.Selection) {
			items = append(items, "<li>"+htmlTextEscaper.Replace(strings.TrimSpace(li.Text()))+"</li>")
		})
		return fmt.Sprintf("<%s>%s</%s>", tag, strings.Join(items, ""), tag)

	case "table":
		return tableToHTML(s)
	}

	return ""
}

// tableToHTML 把表格重建为纯文本单元格的HTML
func tableToHTML(table *goquery.Selection) string {
	var rows []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, "<td>"+htmlTextEscaper.Replace(strings.TrimSpace(cell.Text()))+"</td>")
		})
		if len(cells) > 0 {
			rows = append(rows, "<tr>"+strings.Join(cells, "")+"</tr>")
		}
	})
	return "<table>" + strings.Join(rows, "") + "</table>"
}

// extractSections 把内容区域按h2标题切分为纯文本小节
// 第一个h2之前的段落构成level 0的引言小节;
// h3折叠为当前小节内的"### "行,列表项渲染为"  • "行,
// 表格渲染为" | "连接的行;h2之外的表格和h3出现在小节外时丢弃
func extractSections(area *goquery.Selection) []models.ContentSection {
	var introParts []string
	var sections []models.ContentSection
	var current *models.ContentSection

	flush := func() {
		if current != nil && strings.TrimSpace(current.Content) != "" {
			sections = append(sections, *current)
		}
	}

	area.Find("p, h2, h3, ul, ol, table").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h2":
			flush()
			current = &models.ContentSection{
				Heading: strings.TrimSpace(s.Text()),
				Level:   2,
			}

		case "h3":
			if current != nil {
				current.Content += fmt.Sprintf("\n\n### %s\n", strings.TrimSpace(s.Text()))
			}

		case "p":
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			if current == nil {
				introParts = append(introParts, text)
			} else {
				current.Content += "\n" + text
			}

		case "ul", "ol":
			var items []string
			s.Find("li").Each(func(_ int, li *goquery.Selection) {
				items = append(items, "  • "+strings.TrimSpace(li.Text()))
			})
			listText := strings.Join(items, "\n")
			if current == nil {
				introParts = append(introParts, listText)
			} else {
				current.Content += "\n" + listText
			}

		case "table":
			if current != nil {
				current.Content += fmt.Sprintf("\n\n%s\n", tableToText(s))
			}
		}
	})
	flush()

	// 引言小节放在最前
	var all []models.ContentSection
	if intro := strings.Join(introParts, "\n\n"); strings.TrimSpace(intro) != "" {
		all = append(all, models.ContentSection{Heading: "", Content: intro, Level: 0})
	}
	all = append(all, sections...)

	return all
}

// tableToText 把表格渲染为" | "连接的纯文本行
func tableToText(table *goquery.Selection) string {
	var rows []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	})
	return strings.Join(rows, "\n")
}

// metaContent 读取meta标签的content属性(去除首尾空白)
func metaContent(doc *goquery.Document, selector string) string {
	if content, ok := doc.Find(selector).First().Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

// classContains 判断节点class属性是否含指定片段(不区分大小写)
func classContains(s *goquery.Selection, fragment string) bool {
	class, exists := s.Attr("class")
	if !exists {
		return false
	}
	return strings.Contains(strings.ToLower(class), fragment)
}
