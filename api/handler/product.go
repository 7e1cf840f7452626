package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/offerscrape/cache"
	"github.com/use-agent/offerscrape/metrics"
	"github.com/use-agent/offerscrape/models"
)

// ProductFetcher fetches one product on its own browser session.
type ProductFetcher interface {
	FetchProduct(ctx context.Context, productID string) (models.ProductData, error)
	Stats() models.SessionStats
}

// Product returns a handler for POST {prefix}/product/search-by-id/:product_id.
//
//  1. Bind and validate the numeric product id.
//  2. With max_age > 0, answer from the cache when a fresh result exists.
//  3. FetchProduct on a fresh session.
//  4. Map failures to 404 / 403 / 504 / 500, or respond 200 "success".
func Product(f ProductFetcher, cc *cache.Cache, baseURL string, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.ProductRequest
		if err := c.ShouldBindUri(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "product_id must be numeric", err))
			return
		}
		var q models.ProductQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "max_age must be a non-negative integer", err))
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		key := cache.Key(baseURL, req.ProductID)
		if cc != nil && q.MaxAge > 0 {
			data, hit := cc.Get(key, q.MaxAge)
			m.CacheLookup(hit)
			if hit {
				c.Header("X-Cache", "hit")
				c.JSON(http.StatusOK, success(data))
				return
			}
		}

		// ── 3. Fetch ────────────────────────────────────────────────
		data, err := f.FetchProduct(c.Request.Context(), req.ProductID)
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 4. Cache store and respond ──────────────────────────────
		if cc != nil {
			cc.Set(key, data)
			if q.MaxAge > 0 {
				c.Header("X-Cache", "miss")
			}
		}
		c.JSON(http.StatusOK, success(data))
	}
}

func success(data models.ProductData) models.ProductResponse {
	return models.ProductResponse{Code: http.StatusOK, Msg: "success", Data: data}
}

// respondError writes {code, message} with the status mapped from the
// error code.
func respondError(c *gin.Context, err error) {
	se := models.AsScrapeError(err)
	status := statusFor(se)
	c.JSON(status, models.ErrorResponse{Code: status, Message: detail(se)})
}

// detail is the client-facing failure text. Unexpected faults carry the
// underlying cause.
func detail(se *models.ScrapeError) string {
	switch se.Code {
	case models.ErrCodeNoData, models.ErrCodeCaptchaUnsolved:
		return se.Message
	}
	var inner *models.ScrapeError
	if se.Err != nil && !errors.As(se.Err, &inner) && se.Err.Error() != se.Message {
		return se.Message + ": " + se.Err.Error()
	}
	return se.Message
}

// statusFor translates error codes to HTTP status codes.
func statusFor(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeNoData:
		return http.StatusNotFound // 404
	case models.ErrCodeCaptchaUnsolved:
		return http.StatusForbidden // 403
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
