package research

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// maxPageChars caps how much extracted page text is returned to the model.
const maxPageChars = 8000

// FetchPage downloads a URL and extracts its readable text. Like Search, the
// outcome is always a tool-result string.
func (c *Client) FetchPage(ctx context.Context, url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "Fetch failed: URL must start with http:// or https://"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("Fetch failed: %v", err)
	}
	req.Header.Set("User-Agent", "agentsmith-research/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
		return fmt.Sprintf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Fetch failed: status %d for %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Sprintf("Fetch failed: %v", err)
	}
	return ExtractText(doc)
}

// ExtractText pulls readable text from a parsed document: script, style and
// nav chrome are dropped, paragraphs and headings are kept in order.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, header, aside").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	})

	text := b.String()
	if text == "" {
		text = strings.TrimSpace(doc.Find("body").Text())
	}
	if len(text) > maxPageChars {
		text = text[:maxPageChars] + "\n[truncated]"
	}
	if text == "" {
		return "Fetch succeeded but the page has no readable text."
	}
	return text
}
