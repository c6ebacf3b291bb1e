package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/IshaanNene/jepx/internal/types"
)

// FetchToken loads pagePath and returns its anti-forgery token.
func (c *Client) FetchToken(ctx context.Context, pagePath string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "fetcher:FetchToken", trace.WithAttributes(
		attribute.String("jepx.page", pagePath),
	))
	defer span.End()

	target := c.Resolve(pagePath)
	res, err := c.Get(ctx, pagePath, nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch token page")
		return "", &types.FetchError{URL: target, Err: err}
	}
	if err := Accept(res.StatusCode(), res.Body(), 0); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", &types.FetchError{URL: target, StatusCode: res.StatusCode(), Err: err}
	}

	token, err := ExtractToken(res.Body())
	if err != nil {
		span.SetStatus(codes.Error, "failed to find csrf token")
		return "", &types.FetchError{URL: target, StatusCode: res.StatusCode(), Err: err}
	}
	c.logger.Debug("csrf token acquired", "page", pagePath)
	return token, nil
}

// ExtractToken reads the hidden _csrf form field, falling back to a
// csrf-token meta tag.
func ExtractToken(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse token page: %w", err)
	}

	if token := strings.TrimSpace(doc.Find("input[name=_csrf]").AttrOr("value", "")); token != "" {
		return token, nil
	}

	for _, root := range doc.Nodes {
		if token := metaToken(root); token != "" {
			return token, nil
		}
	}
	return "", types.ErrNoCSRFToken
}

func metaToken(root *html.Node) string {
	meta := htmlquery.FindOne(root, "//meta[@name='csrf-token']")
	if meta == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.SelectAttr(meta, "content"))
}
