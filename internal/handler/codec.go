package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

type parseRequest struct {
	Text string `json:"text"`
}

type compressRequest struct {
	IDs []int `json:"ids"`
}

// ParseControlNumbers handles POST /v1/control-numbers/parse.  Forms call
// it for live validation; the normalized notation is echoed back.
func ParseControlNumbers(c echo.Context) error {
	var req parseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ids, err := rangecodec.Parse(req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ids":        ids,
		"count":      len(ids),
		"normalized": rangecodec.Compress(ids),
	})
}

// CompressControlNumbers handles POST /v1/control-numbers/compress.
func CompressControlNumbers(c echo.Context) error {
	var req compressRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	for _, id := range req.IDs {
		if id <= 0 {
			return badRequest(c, "control numbers must be positive")
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"text": rangecodec.Compress(req.IDs)})
}
