package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/RecoveryAshes/NexoBot/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

const (
	// ctxKeyResult colly请求上下文中存放抓取结果的键
	ctxKeyResult = "fetch_result"

	// DefaultTimeout 默认请求超时(秒)
	DefaultTimeout = 60
)

// FetcherConfig 抓取器配置
type FetcherConfig struct {
	// Timeout 单次请求超时(秒) (默认:60)
	Timeout int

	// Delay 同一抓取器连续请求之间的间隔(秒)
	Delay float64

	// HeaderProvider HTTP头部提供者 (可为nil,使用colly默认头部)
	HeaderProvider models.HeaderProvider
}

// fetchResult 单次请求的结果载体
// 通过colly.Context在回调之间传递,每次请求独立
type fetchResult struct {
	ctx        context.Context
	body       []byte
	statusCode int
	err        error
}

// Fetcher 页面抓取器(基于Colly)
// 每个域名工作器持有独立实例,请求间隔互不影响
type Fetcher struct {
	collector *colly.Collector
	config    FetcherConfig

	// HTTP头部提供者
	headerProvider models.HeaderProvider
}

// NewFetcher 创建页面抓取器
func NewFetcher(config FetcherConfig) *Fetcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	httpTimeout := time.Duration(config.Timeout) * time.Second

	// 自定义HTTP客户端,禁用TLS证书验证
	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
		Timeout: httpTimeout,
	}

	// 同步collector: 工作器流水线按顺序处理URL
	// AllowURLRevisit必须开启,daemon模式下同一URL每轮循环都会重新抓取,
	// 去重由历史记录层负责,抓取器保持无状态
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetClient(httpClient)
	c.WithTransport(httpClient.Transport)
	c.SetRequestTimeout(httpTimeout)

	// 请求间隔: 限流只作用于当前抓取器,不影响其它域名的工作器
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       time.Duration(config.Delay * float64(time.Second)),
	}); err != nil {
		utils.Warnf("设置请求间隔失败: %v", err)
	}

	f := &Fetcher{
		collector:      c,
		config:         config,
		headerProvider: config.HeaderProvider,
	}
	f.setupCallbacks()

	utils.Debugf("抓取器初始化: 超时=%d秒, 请求间隔=%.1f秒", config.Timeout, config.Delay)
	return f
}

// setupCallbacks 设置Colly回调
func (f *Fetcher) setupCallbacks() {
	// 访问前: 应用自定义头部,响应取消信号
	f.collector.OnRequest(func(r *colly.Request) {
		res, ok := r.Ctx.GetAny(ctxKeyResult).(*fetchResult)
		if ok && res.ctx != nil && res.ctx.Err() != nil {
			r.Abort()
			return
		}

		if f.headerProvider != nil {
			headers, err := f.headerProvider.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}

		utils.Debugf("访问: %s", r.URL.String())
	})

	// 处理响应: 按Content-Encoding解压后写入结果
	f.collector.OnResponse(func(r *colly.Response) {
		res, ok := r.Ctx.GetAny(ctxKeyResult).(*fetchResult)
		if !ok {
			return
		}

		body := r.Body
		if contentEncoding := r.Headers.Get("Content-Encoding"); contentEncoding != "" {
			decompressed, err := decompressResponse(contentEncoding, r.Body)
			if err != nil {
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", r.Request.URL, contentEncoding, err)
				// 解压失败,仍然尝试使用原始body
			} else {
				body = decompressed
			}
		}

		res.statusCode = r.StatusCode
		res.body = body
	})

	// 错误处理: 记录状态码和底层错误
	f.collector.OnError(func(r *colly.Response, err error) {
		res, ok := r.Request.Ctx.GetAny(ctxKeyResult).(*fetchResult)
		if !ok {
			return
		}
		res.statusCode = r.StatusCode
		res.err = err
	})
}

// Fetch 抓取URL并返回解压后的响应体
// 网络失败、超时或非2xx状态码都返回*models.FetchError
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	res, err := f.do(ctx, "GET", rawURL)
	if err != nil {
		return nil, err
	}
	return res.body, nil
}

// FetchDocument 抓取URL并解析为goquery文档
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &models.FetchError{
			URL:   rawURL,
			Cause: fmt.Errorf("HTML解析失败: %w", err),
		}
	}
	return doc, nil
}

// Head 发送HEAD请求,返回状态码
// 用于sitemap探测等只关心可达性的场景
func (f *Fetcher) Head(ctx context.Context, rawURL string) (int, error) {
	res, err := f.do(ctx, "HEAD", rawURL)
	if err != nil {
		return 0, err
	}
	return res.statusCode, nil
}

// do 执行单次请求
func (f *Fetcher) do(ctx context.Context, method, rawURL string) (*fetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.FetchError{URL: rawURL, Cause: err}
	}

	res := &fetchResult{ctx: ctx}
	cctx := colly.NewContext()
	cctx.Put(ctxKeyResult, res)

	reqErr := f.collector.Request(method, rawURL, nil, cctx, nil)

	// OnError回调记录的错误优先,它带有HTTP状态码
	if res.err != nil {
		return nil, &models.FetchError{URL: rawURL, StatusCode: res.statusCode, Cause: res.err}
	}
	if reqErr != nil {
		return nil, &models.FetchError{URL: rawURL, StatusCode: res.statusCode, Cause: reqErr}
	}
	if err := ctx.Err(); err != nil {
		return nil, &models.FetchError{URL: rawURL, Cause: err}
	}
	if res.statusCode >= 400 {
		return nil, &models.FetchError{URL: rawURL, StatusCode: res.statusCode,
			Cause: fmt.Errorf("HTTP状态异常")}
	}

	return res, nil
}

// decompressResponse 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		// GZIP解压
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		// Deflate解压
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		// Brotli解压
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "":
		// 没有压缩,直接返回原始内容
		return body, nil

	default:
		// 未知编码,返回警告但仍然返回原始内容
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
