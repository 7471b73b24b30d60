package gateway

import (
	"net/http"
	"strings"

	"github.com/example/storefront/pkg/errs"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// paged writes one page of rows with the pagination metadata.
func paged(c *gin.Context, rows interface{}, total, page, pageSize int) {
	c.JSON(http.StatusOK, gin.H{
		"data": rows,
		"meta": gin.H{"total": total, "page": page, "per_page": pageSize},
	})
}

// fail writes the error envelope for err with the status its code maps to.
func (g *Gateway) fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{
		"code":    strings.ReplaceAll(errs.Code(err), " ", "_"),
		"message": errs.Message(err),
	}})
}

func (g *Gateway) badRequest(c *gin.Context, msg string, err error) {
	g.fail(c, &errs.Error{Code: errs.EInvalid, Msg: msg, Err: err})
}

// parsePagination reads page and perPage (or pageSize) query parameters.
func parsePagination(c *gin.Context) (int, int) {
	page := cast.ToInt(c.Query("page"))
	if page < 1 {
		page = 1
	}
	size := cast.ToInt(c.Query("perPage"))
	if size == 0 {
		size = cast.ToInt(c.Query("pageSize"))
	}
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size
}

// pageOf slices one page out of an in-memory list.
func pageOf[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
