package rest

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

// setPaginationHeaders reports the full result-set size and, when more rows
// remain past the returned window, a Link header pointing at the next page.
// The next-page URL keeps the original query and only advances the offset.
func setPaginationHeaders(c echo.Context, baseURL string, total int64, offset, limit int) {
	header := c.Response().Header()
	header.Set(domain.TotalCountHeader, strconv.FormatInt(total, 10))
	header.Set(domain.LimitHeader, strconv.Itoa(limit))

	next := int64(offset + limit)
	if total <= next {
		return
	}

	query := c.Request().URL.Query()
	query.Set("offset", strconv.FormatInt(next, 10))
	query.Set("limit", strconv.Itoa(limit))

	origin := baseURL
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Host != "" {
		origin = parsed.Scheme + "://" + parsed.Host
	}

	nextURL := origin + c.Request().URL.Path + "?" + query.Encode()
	header.Set(domain.LinkHeader, fmt.Sprintf("<%s>; rel=\"next\"", nextURL))
}
