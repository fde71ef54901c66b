package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-rag-chat/utils"
)

// multipartOverhead leaves room for the form boundaries and small fields
// around the file part.
const multipartOverhead = 1 << 20

// RequestSizeLimit rejects bodies declared larger than maxSize and caps the
// reader for bodies that do not declare a length.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize+multipartOverhead {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size":    maxSize,
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)
		c.Next()
	}
}
