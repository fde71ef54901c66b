package utils

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-rag-chat/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Success   bool        `json:"success"`
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

type serviceError struct {
	target  error
	status  int
	code    string
	message string
}

// Client errors carry the underlying message; upstream failures get a fixed
// one so backend details stay in the logs.
var serviceErrors = []serviceError{
	{models.ErrSessionNotFound, http.StatusNotFound, "session_not_found", ""},
	{models.ErrNoDocuments, http.StatusBadRequest, "no_documents", ""},
	{models.ErrExtraction, http.StatusBadRequest, "extraction_failed", ""},
	{models.ErrInvalidConfig, http.StatusBadRequest, "invalid_input", ""},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", "The request timed out"},
	{models.ErrEmbeddingService, http.StatusBadGateway, "embedding_failed", "Embedding service unavailable"},
	{models.ErrGenerationService, http.StatusBadGateway, "generation_failed", "Language model unavailable"},
	{models.ErrVectorStore, http.StatusBadGateway, "vector_store_error", "Vector store unavailable"},
}

// ClassifyError maps a pipeline error to an HTTP status, error code and
// client-facing message.
func ClassifyError(err error) (int, string, string) {
	for _, se := range serviceErrors {
		if errors.Is(err, se.target) {
			if se.message == "" {
				return se.status, se.code, err.Error()
			}
			return se.status, se.code, se.message
		}
	}
	return http.StatusInternalServerError, "internal_error", "Internal server error"
}

// RespondWithServiceError sends the response matching err's place in the
// error taxonomy.
func RespondWithServiceError(c *gin.Context, err error) {
	status, code, message := ClassifyError(err)
	_ = c.Error(err)
	RespondWithError(c, status, code, message, nil)
}
