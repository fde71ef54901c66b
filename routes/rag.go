package routes

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pdf-rag-chat/internal/config"
	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/middleware"
	"pdf-rag-chat/models"
	"pdf-rag-chat/services"
	"pdf-rag-chat/utils"
)

// ProviderStatus is the view of the language model backend shown by /health.
type ProviderStatus interface {
	Name() string
	State() string
}

// SetupRAGRoutes registers the upload, chat, cleanup and inspection endpoints.
func SetupRAGRoutes(router *gin.Engine, cfg *config.Config, rag *services.RAGService, llm ProviderStatus, backend string) {
	router.GET("/health", HandleHealth(rag, llm, backend))
	router.POST("/upload", middleware.RequestSizeLimit(cfg.MaxFileSize), HandleUpload(cfg, rag))
	router.POST("/chat", HandleChat(rag))
	router.POST("/cleanup", HandleCleanup(rag))
	router.GET("/sessions/:id", HandleGetSession(rag))
}

// HandleUpload ingests one PDF from the multipart field "pdf". The optional
// form field "sessionId" adds the document to an existing session.
func HandleUpload(cfg *config.Config, rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("pdf")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large", "File size exceeds maximum limit", nil)
				return
			}
			utils.RespondWithError(c, http.StatusBadRequest, "no_file", "No PDF file uploaded", nil)
			return
		}
		defer file.Close()

		if uerr := validateUpload(header, cfg.MaxFileSize); uerr != nil {
			utils.RespondWithError(c, uerr.status, uerr.code, uerr.message, nil)
			return
		}

		content, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSize+1))
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_file", "Cannot read uploaded file", nil)
			return
		}

		ctx, cancel := utils.WithIngestTimeout(c.Request.Context())
		defer cancel()

		result, err := rag.Ingestor.Ingest(ctx, content, header.Filename, c.PostForm("sessionId"))
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}
		c.Set("session_id", result.SessionID)

		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"sessionId":      result.SessionID,
			"collectionName": result.CollectionName,
			"fileName":       result.FileName,
			"chunkCount":     result.ChunkCount,
			"message":        "PDF processed successfully",
		})
	}
}

// HandleChat answers a question about the session's documents, streamed as
// server-sent events unless the request sets "stream": false.
func HandleChat(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input", "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		c.Set("session_id", req.SessionID)

		ctx, cancel := utils.WithChatTimeout(c.Request.Context())
		defer cancel()

		if req.Stream != nil && !*req.Stream {
			result, err := rag.Chat.Ask(ctx, req.SessionID, req.Message)
			if err != nil {
				utils.RespondWithServiceError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success":  true,
				"response": result.Response,
				"sources":  result.Sources,
			})
			return
		}

		sink := newSSESink(c)
		_, err := rag.Chat.Chat(ctx, req.SessionID, req.Message, sink)
		switch {
		case err == nil:
		case !sink.started:
			utils.RespondWithServiceError(c, err)
		case errors.Is(err, services.ErrSinkUnavailable):
			logger.Debug("Chat client disconnected", "request_id", middleware.GetRequestID(c), "session_id", req.SessionID)
		default:
			// Already reported to the client as an error frame.
			_ = c.Error(err)
		}
	}
}

// HandleCleanup deletes a session and all of its collections.
func HandleCleanup(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CleanupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input", "Session ID is required", gin.H{"error": err.Error()})
			return
		}
		c.Set("session_id", req.SessionID)

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		result, err := rag.Cleaner.Cleanup(ctx, req.SessionID)
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}

		message := "Session cleaned up successfully"
		if len(result.Warnings) > 0 {
			message = "Session cleaned up with warnings"
		}
		c.JSON(http.StatusOK, gin.H{
			"success":            true,
			"sessionId":          result.SessionID,
			"deletedCollections": result.DeletedCollections,
			"warnings":           result.Warnings,
			"message":            message,
		})
	}
}

// HandleGetSession lists the documents of one session.
func HandleGetSession(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := rag.Session(c.Param("id"))
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"session": session,
		})
	}
}

func HandleHealth(rag *services.RAGService, llm ProviderStatus, backend string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		if llm.State() != "closed" {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    status,
			"timestamp": time.Now(),
			"llm": gin.H{
				"provider":       llm.Name(),
				"circuitBreaker": llm.State(),
			},
			"vectorStore":    backend,
			"activeSessions": rag.Registry.Len(),
		})
	}
}
