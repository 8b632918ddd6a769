package skyview

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// SurveyGroup is one category of the SkyView survey selector.
type SurveyGroup struct {
	Category string
	Surveys  []string
}

// ListSurveys scrapes the survey selectors of the SkyView query form. Each
// <select name="survey"> is one category named by its id; overlay selectors
// are skipped.
func (c *Client) ListSurveys(ctx context.Context) ([]SurveyGroup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, maxFormBytes)
	if err != nil {
		return nil, err
	}
	return ParseSurveyForm(body)
}

func ParseSurveyForm(page []byte) ([]SurveyGroup, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse survey form: %w", err)
	}

	var groups []SurveyGroup
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "select" && attr(n, "name") == "survey" {
			id := strings.TrimSpace(attr(n, "id"))
			if id != "" && !strings.Contains(strings.ToLower(id), "overlay") {
				groups = append(groups, SurveyGroup{Category: id, Surveys: options(n)})
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return groups, nil
}

func options(sel *html.Node) []string {
	out := []string{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			value := strings.TrimSpace(attr(n, "value"))
			if value == "" {
				value = strings.TrimSpace(text(n))
			}
			if value != "" {
				out = append(out, value)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(sel)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			b.WriteString(child.Data)
		}
	}
	return b.String()
}
