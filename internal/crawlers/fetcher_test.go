package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/NexoBot/internal/models"
	"github.com/andybalholm/brotli"
)

// stubHeaderProvider 固定头部的HeaderProvider实现
type stubHeaderProvider struct {
	headers http.Header
	err     error
}

func (s *stubHeaderProvider) GetHeaders() (http.Header, error) {
	return s.headers, s.err
}

func TestFetcher_Fetch(t *testing.T) {
	const page = "<html><head><title>测试页面</title></head><body>hello</body></html>"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})
	body, err := fetcher.Fetch(context.Background(), ts.URL+"/blog/2024/post-a")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != page {
		t.Errorf("Fetch() body = %q, want %q", string(body), page)
	}
}

func TestFetcher_Fetch_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})
	_, err := fetcher.Fetch(context.Background(), ts.URL+"/missing")
	if err == nil {
		t.Fatal("Fetch() error = nil, want *models.FetchError")
	}

	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("错误类型 = %T, want *models.FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, http.StatusNotFound)
	}
}

func TestFetcher_Fetch_ContextCanceled(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})
	_, err := fetcher.Fetch(ctx, ts.URL)
	if err == nil {
		t.Fatal("已取消的上下文应返回错误")
	}
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("错误类型 = %T, want *models.FetchError", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("取消后不应发起请求, 实际命中 %d 次", hits)
	}
}

func TestFetcher_Fetch_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过耗时的超时测试")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1500 * time.Millisecond)
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 1})
	_, err := fetcher.Fetch(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("超时请求应返回错误")
	}
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("错误类型 = %T, want *models.FetchError", err)
	}
}

func TestFetcher_FetchDocument(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head><title>文档标题</title></head><body><p>正文</p></body></html>"))
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})
	doc, err := fetcher.FetchDocument(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("FetchDocument() error = %v", err)
	}
	if title := doc.Find("title").Text(); title != "文档标题" {
		t.Errorf("title = %q, want 文档标题", title)
	}
}

func TestFetcher_Head(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})

	status, err := fetcher.Head(context.Background(), ts.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Head() status = %d, want 200", status)
	}

	if _, err := fetcher.Head(context.Background(), ts.URL+"/nope.xml"); err == nil {
		t.Error("404路径的Head() 应返回错误")
	}
}

func TestFetcher_CustomHeaders(t *testing.T) {
	var gotUA, gotCustom string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Custom-Token")
	}))
	defer ts.Close()

	provider := &stubHeaderProvider{headers: http.Header{
		"User-Agent":     []string{"TestAgent/1.0"},
		"X-Custom-Token": []string{"abc123"},
	}}
	fetcher := NewFetcher(FetcherConfig{Timeout: 5, HeaderProvider: provider})

	if _, err := fetcher.Fetch(context.Background(), ts.URL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotUA != "TestAgent/1.0" {
		t.Errorf("User-Agent = %q, want TestAgent/1.0", gotUA)
	}
	if gotCustom != "abc123" {
		t.Errorf("X-Custom-Token = %q, want abc123", gotCustom)
	}
}

func TestFetcher_Fetch_Brotli(t *testing.T) {
	const page = "<html><body>brotli压缩的页面内容</body></html>"

	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	if _, err := bw.Write([]byte(page)); err != nil {
		t.Fatalf("压缩测试数据失败: %v", err)
	}
	bw.Close()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "text/html")
		w.Write(compressed.Bytes())
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})
	body, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != page {
		t.Errorf("brotli解压后 = %q, want %q", string(body), page)
	}
}

func TestDecompressResponse(t *testing.T) {
	const raw = "原始响应内容 plain body"

	gzipped := func() []byte {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		w.Write([]byte(raw))
		w.Close()
		return buf.Bytes()
	}()

	deflated := func() []byte {
		var buf bytes.Buffer
		w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
		w.Write([]byte(raw))
		w.Close()
		return buf.Bytes()
	}()

	brotlied := func() []byte {
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		w.Write([]byte(raw))
		w.Close()
		return buf.Bytes()
	}()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		want     string
		wantErr  bool
	}{
		{"gzip解压", "gzip", gzipped, raw, false},
		{"大写编码名", "GZIP", gzipped, raw, false},
		{"deflate解压", "deflate", deflated, raw, false},
		{"brotli解压", "br", brotlied, raw, false},
		{"无编码原样返回", "", []byte(raw), raw, false},
		{"未知编码原样返回", "zstd", []byte(raw), raw, false},
		{"gzip数据损坏", "gzip", []byte("not really gzip"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressResponse(tt.encoding, tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decompressResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if string(got) != tt.want {
				t.Errorf("decompressResponse() = %q, want %q", string(got), tt.want)
			}
		})
	}
}

func TestFetcher_Fetch_AllowRevisit(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})
	target := ts.URL + "/blog/2024/repeat-me"

	// daemon模式下同一URL每轮都会重新抓取,抓取器不做去重
	for i := 0; i < 2; i++ {
		if _, err := fetcher.Fetch(context.Background(), target); err != nil {
			t.Fatalf("第 %d 次Fetch() error = %v", i+1, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("重复抓取命中 %d 次, want 2", got)
	}
}

func TestFetcher_FetchDocument_SitemapXML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(strings.TrimSpace(`
<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/blog/2024/post-a</loc></url>
</urlset>`)))
	}))
	defer ts.Close()

	fetcher := NewFetcher(FetcherConfig{Timeout: 5})
	body, err := fetcher.Fetch(context.Background(), ts.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(string(body), "<loc>https://example.com/blog/2024/post-a</loc>") {
		t.Errorf("sitemap响应体不完整: %s", string(body))
	}
}
