package presenter

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	ocpi "github.com/julianfickerseq/ocpi-server"
)

func envelope(data any, statusCode int) ocpi.Response {
	return ocpi.Response{
		Data:       data,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC(),
	}
}

// OK wraps a successful response.
func OK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope(data, ocpi.StatusSuccess))
}

// DomainError reports a protocol-level failure. The transport itself
// succeeded, so it rides on HTTP 200 and the envelope status code carries
// the outcome.
func DomainError(c echo.Context, statusCode int, msg string) error {
	return c.JSON(http.StatusOK, envelope(msg, statusCode))
}

func BadRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, envelope(msg, ocpi.StatusInvalidParams))
}

func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, envelope("unauthorized", ocpi.StatusClientError))
}

func Forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, envelope("forbidden", ocpi.StatusClientError))
}

func MethodNotAllowed(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, envelope("method not allowed", ocpi.StatusClientError))
}

func ServerError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, envelope(err.Error(), ocpi.StatusServerError))
}
