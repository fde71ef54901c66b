package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-rag-chat/models"
)

// sseSink writes a streamed answer as server-sent events. Headers go out with
// the first frame so failures before any token can still be answered with a
// plain JSON error.
type sseSink struct {
	c       *gin.Context
	started bool
}

func newSSESink(c *gin.Context) *sseSink {
	return &sseSink{c: c}
}

func (s *sseSink) OnChunk(token string, sources []models.Source) error {
	return s.write(models.StreamFrame{Success: true, Response: token, Sources: sources})
}

// OnComplete ends the stream by returning; the handler closes the response.
// A generation that produced no tokens still answers as an empty event stream.
func (s *sseSink) OnComplete() error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	s.start()
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) OnError(message string) error {
	return s.write(models.StreamFrame{Success: false, Error: message})
}

func (s *sseSink) write(frame models.StreamFrame) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	s.start()

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) start() {
	if s.started {
		return
	}
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.started = true
}
