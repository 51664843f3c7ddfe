// web.go registers the HTTP and web tools: http_request, browse, extract,
// and screenshot. Page text extraction is a crude tag strip, good enough
// for the research and browser workers to read article bodies.
package toolkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	webTimeout   = 30 * time.Second
	maxBodyBytes = 200 * 1024
	userAgent    = "omniclaw/1.0 (+https://github.com/jholhewres/omniclaw)"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

func registerWebTools(c *Catalog) {
	client := &http.Client{Timeout: webTimeout}

	c.Register(
		spec("http_request", "Perform an HTTP request and return status and body.", map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method (default GET)",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body for POST/PUT",
			},
			"content_type": map[string]any{
				"type":        "string",
				"description": "Content-Type header for the request body",
			},
		}, "url"),
		func(ctx context.Context, args map[string]any) (any, error) {
			url, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			method, _ := args["method"].(string)
			if method == "" {
				method = http.MethodGet
			}
			var body io.Reader
			if b, ok := args["body"].(string); ok && b != "" {
				body = strings.NewReader(b)
			}

			req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
			if err != nil {
				return nil, fmt.Errorf("creating request: %w", err)
			}
			req.Header.Set("User-Agent", userAgent)
			if ct, ok := args["content_type"].(string); ok && ct != "" {
				req.Header.Set("Content-Type", ct)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return nil, fmt.Errorf("reading response: %w", err)
			}
			return map[string]any{
				"status": resp.StatusCode,
				"body":   string(data),
			}, nil
		},
	)

	fetchText := func(ctx context.Context, url string) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("fetch failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetch returned %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return "", fmt.Errorf("reading page: %w", err)
		}
		return htmlToText(string(data)), nil
	}

	c.Register(
		spec("browse", "Fetch a web page and return its readable text.", map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Page URL",
			},
		}, "url"),
		func(ctx context.Context, args map[string]any) (any, error) {
			url, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			text, err := fetchText(ctx, url)
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": url, "text": text}, nil
		},
	)

	c.Register(
		spec("extract", "Fetch a web page and return the text matching a query string, with surrounding context.", map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Page URL",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Substring to locate in the page text",
			},
		}, "url", "query"),
		func(ctx context.Context, args map[string]any) (any, error) {
			url, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			text, err := fetchText(ctx, url)
			if err != nil {
				return nil, err
			}
			idx := strings.Index(strings.ToLower(text), strings.ToLower(query))
			if idx < 0 {
				return map[string]any{"url": url, "found": false}, nil
			}
			start := idx - 500
			if start < 0 {
				start = 0
			}
			end := idx + len(query) + 500
			if end > len(text) {
				end = len(text)
			}
			return map[string]any{
				"url":     url,
				"found":   true,
				"excerpt": text[start:end],
			}, nil
		},
	)

	c.Register(
		spec("screenshot", "Capture a screenshot of a web page.", map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Page URL",
			},
		}, "url"),
		func(_ context.Context, _ map[string]any) (any, error) {
			// TODO: wire a headless browser backend; text extraction via
			// browse/extract covers research flows meanwhile.
			return nil, fmt.Errorf("screenshot capture requires a browser backend, which is not configured")
		},
	)
}

// htmlToText strips markup and collapses whitespace.
func htmlToText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, "\n")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return blankRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
}
