package extract

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// maxArticleChars bounds how much page text goes into one extraction
// prompt.
const maxArticleChars = 24_000

// ReadArticle reduces a fetched page to its title and a markdown body
// suitable for an extraction prompt. Readability isolates the article;
// when it finds nothing usable the raw visible text is the fallback.
func ReadArticle(page *Page) (title, markdown string, err error) {
	pageURL, err := url.Parse(page.FinalURL)
	if err != nil {
		return "", "", fmt.Errorf("parse page URL: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		converter := md.NewConverter("", true, nil)
		body, convErr := converter.ConvertString(article.Content)
		if convErr == nil && strings.TrimSpace(body) != "" {
			return article.Title, truncate(body, maxArticleChars), nil
		}
	}

	text := visibleText(page.HTML)
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("no readable content in %s", page.FinalURL)
	}
	return "", truncate(text, maxArticleChars), nil
}

// visibleText walks the HTML tree collecting text nodes, skipping
// non-content elements.
func visibleText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return buf.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
