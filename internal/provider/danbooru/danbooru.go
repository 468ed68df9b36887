package danbooru

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	providerx "github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/provider"
)

// DefaultBaseURL 是 Danbooru 的默认站点地址。
const DefaultBaseURL = "https://danbooru.donmai.us"

// Client 实现 Danbooru 的页面抓取与 HTML 解析。
//
// 约束：
// - Fetch 不做缓存/限速（重试由 httpx 的 Transport 统一控制）
// - ParseListing / ParsePost 必须是纯函数（依赖输入 html + pageURL）
type Client struct {
	// BaseURL 允许指向镜像域名；为空时使用 DefaultBaseURL。
	BaseURL string
	HTTP    *http.Client
}

func (c *Client) base() string {
	b := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if b == "" {
		b = DefaultBaseURL
	}
	return b
}

// ListPage 抓取列表页 /posts?tags=<tag>&page=<n> 并返回该页的帖子 ID（按页面顺序）。
// 空结果不算错误：上层以空切片判断“没有更多页”。
func (c *Client) ListPage(ctx context.Context, tag string, page int) ([]string, error) {
	if c.HTTP == nil {
		return nil, errors.New("http client 不能为空")
	}
	if strings.TrimSpace(tag) == "" {
		return nil, errors.New("tag 不能为空")
	}
	if page < 1 {
		page = 1
	}

	pageURL := fmt.Sprintf("%s/posts?tags=%s&page=%d", c.base(), url.QueryEscape(tag), page)
	b, err := fetchURL(ctx, c.HTTP, pageURL)
	if err != nil {
		return nil, &providerx.Error{Stage: "fetch", URL: pageURL, Err: err}
	}

	ids, err := ParseListing(b)
	if err != nil {
		return nil, &providerx.Error{Stage: "parse", URL: pageURL, Err: err}
	}
	return ids, nil
}

// FetchPost 抓取帖子页 /posts/<id>，返回 HTML 与页面 URL。
func (c *Client) FetchPost(ctx context.Context, id string) ([]byte, string, error) {
	if c.HTTP == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if strings.TrimSpace(id) == "" {
		return nil, "", errors.New("post id 不能为空")
	}

	pageURL := c.base() + "/posts/" + url.PathEscape(id)
	b, err := fetchURL(ctx, c.HTTP, pageURL)
	if err != nil {
		return nil, pageURL, &providerx.Error{Stage: "fetch", URL: pageURL, Err: err}
	}
	return b, pageURL, nil
}

// GetPost 抓取并解析一个帖子页。
func (c *Client) GetPost(ctx context.Context, id string) (providerx.Post, error) {
	html, pageURL, err := c.FetchPost(ctx, id)
	if err != nil {
		return providerx.Post{}, err
	}
	p, err := ParsePost(id, html, pageURL)
	if err != nil {
		return providerx.Post{}, &providerx.Error{Stage: "parse", URL: pageURL, Err: err}
	}
	return p, nil
}

// ParseListing 解析列表页 HTML，提取帖子 ID。
//
// 优先 article.post-preview 的 data-id；缺失时回退帖子链接 /posts/<id>。
func ParseListing(html []byte) ([]string, error) {
	if len(html) == 0 {
		return nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, 20)
	seen := make(map[string]struct{}, 20)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	doc.Find("article.post-preview").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("data-id"); ok {
			add(id)
		}
	})
	if len(ids) == 0 {
		doc.Find("a").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			add(idFromPostHref(href))
		})
	}

	return ids, nil
}

// ParsePost 把帖子页 HTML 解析为 Post（纯函数）。
//
// 原图地址优先 section#image-container 的 data-file-url，回退 img#image 的 src；
// 标签取 li 的 data-tag-name（保持页面顺序，即按类别分组的顺序）。
func ParsePost(id string, html []byte, pageURL string) (providerx.Post, error) {
	if strings.TrimSpace(id) == "" {
		return providerx.Post{}, errors.New("post id 不能为空")
	}
	if len(html) == 0 {
		return providerx.Post{}, errors.New("html 为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return providerx.Post{}, err
	}

	fileURL := ""
	if v, ok := doc.Find("section#image-container").First().Attr("data-file-url"); ok {
		fileURL = resolveURL(pageURL, v)
	}
	if fileURL == "" {
		if v, ok := doc.Find("img#image").First().Attr("src"); ok {
			fileURL = resolveURL(pageURL, v)
		}
	}
	if fileURL == "" {
		return providerx.Post{}, errors.New("未找到原图地址（疑似返回了拦截页/非帖子页内容）")
	}

	tags := make([]string, 0, 32)
	tagSeen := make(map[string]struct{}, 32)
	doc.Find("li[data-tag-name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("data-tag-name")
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := tagSeen[name]; ok {
			return
		}
		tagSeen[name] = struct{}{}
		tags = append(tags, name)
	})
	if len(tags) == 0 {
		return providerx.Post{}, errors.New("未找到标签列表（疑似页面结构变化）")
	}

	return providerx.Post{
		ID:      id,
		FileURL: fileURL,
		Ext:     extFromURL(fileURL),
		Tags:    tags,
		PageURL: strings.TrimSpace(pageURL),
	}, nil
}

func fetchURL(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	loc := strings.TrimSpace(resp.Header.Get("Location"))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: loc}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

func idFromPostHref(href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	const prefix = "/posts/"
	if !strings.HasPrefix(u.Path, prefix) {
		return ""
	}
	id := strings.TrimPrefix(u.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func extFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
