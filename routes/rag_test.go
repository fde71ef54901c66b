package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-chat/internal/ai"
	"pdf-rag-chat/internal/config"
	"pdf-rag-chat/internal/vectorstore"
	"pdf-rag-chat/models"
	"pdf-rag-chat/services"
)

const dim = 8

type fakeProvider struct {
	tokens    []string
	streamErr error
}

func (fakeProvider) Name() string { return "fake" }
func (fakeProvider) Close() error { return nil }

func (fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, dim)
	vec[0] = 0.01
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[int(r-'a')%dim]++
		}
	}
	return vec, nil
}

func (p fakeProvider) Generate(context.Context, string) (string, error) {
	return strings.Join(p.tokens, ""), nil
}

func (p fakeProvider) GenerateStream(context.Context, string) (ai.TokenStream, error) {
	return &fakeStream{tokens: p.tokens, err: p.streamErr}, nil
}

type fakeStream struct {
	tokens []string
	err    error
}

func (s *fakeStream) Next() (string, error) {
	if len(s.tokens) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func (s *fakeStream) Close() error { return nil }

type testServer struct {
	router *gin.Engine
	rag    *services.RAGService
	store  *vectorstore.MemoryStore
}

func newTestServer(t *testing.T, provider fakeProvider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.VectorStore = config.VectorStoreMemory
	cfg.VectorSize = dim
	cfg.ChunkSize, cfg.ChunkOverlap = 10, 2
	cfg.MaxFileSize = 1 << 20

	guarded := ai.NewGuarded(provider, 0, nil)
	store := vectorstore.NewMemoryStore()
	rag, err := services.NewRAGService(cfg, guarded, store, services.NewPDFExtractor(), nil)
	require.NoError(t, err)

	router := gin.New()
	SetupRAGRoutes(router, cfg, rag, guarded, store.Backend())
	return &testServer{router: router, rag: rag, store: store}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postJSON(path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func uploadRequest(t *testing.T, fileName string, content []byte, sessionID string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if sessionID != "" {
		require.NoError(t, mw.WriteField("sessionId", sessionID))
	}
	fw, err := mw.CreateFormFile("pdf", fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func samplePDF(t *testing.T) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Arial", "", 12)
	doc.Cell(40, 10, "Alpha. Beta. Gamma.")
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

type uploadResponse struct {
	Success        bool   `json:"success"`
	SessionID      string `json:"sessionId"`
	CollectionName string `json:"collectionName"`
	ChunkCount     int    `json:"chunkCount"`
	Message        string `json:"message"`
}

func (s *testServer) upload(t *testing.T, sessionID string) uploadResponse {
	t.Helper()
	w := s.do(uploadRequest(t, "letters.pdf", samplePDF(t), sessionID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

// frames decodes an SSE body into its JSON payloads.
func frames(t *testing.T, body string) []models.StreamFrame {
	t.Helper()
	var out []models.StreamFrame
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "malformed frame %q", block)
		var f models.StreamFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &f))
		out = append(out, f)
	}
	return out
}

func TestUploadCreatesSession(t *testing.T) {
	s := newTestServer(t, fakeProvider{})

	res := s.upload(t, "")
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.SessionID)
	assert.True(t, strings.HasPrefix(res.CollectionName, "letters_"))
	assert.GreaterOrEqual(t, res.ChunkCount, 3)

	again := s.upload(t, res.SessionID)
	assert.Equal(t, res.SessionID, again.SessionID)
	assert.NotEqual(t, res.CollectionName, again.CollectionName)
	assert.Len(t, s.store.Collections(), 2)
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t, fakeProvider{})

	tests := []struct {
		name     string
		req      func() *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "missing file",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
				r.Header.Set("Content-Type", "multipart/form-data; boundary=x")
				return r
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "no_file",
		},
		{
			name:     "not a pdf name",
			req:      func() *http.Request { return uploadRequest(t, "notes.txt", []byte("hello"), "") },
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_file_type",
		},
		{
			name:     "pdf name with other content",
			req:      func() *http.Request { return uploadRequest(t, "fake.pdf", []byte("hello"), "") },
			wantCode: http.StatusBadRequest,
			wantErr:  "extraction_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.req())
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantErr)
		})
	}
	assert.Empty(t, s.store.Collections())
}

func TestChatStreamsSSE(t *testing.T) {
	s := newTestServer(t, fakeProvider{tokens: []string{"Alpha ", "is first."}})
	res := s.upload(t, "")

	w := s.postJSON("/chat", gin.H{"sessionId": res.SessionID, "message": "What is Alpha?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	got := frames(t, w.Body.String())
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha ", got[0].Response)
	assert.Equal(t, "is first.", got[1].Response)
	for _, f := range got {
		assert.True(t, f.Success)
		assert.NotEmpty(t, f.Sources)
		assert.LessOrEqual(t, len(f.Sources), 3)
	}
}

func TestChatEmptyGenerationStillStreams(t *testing.T) {
	s := newTestServer(t, fakeProvider{})
	res := s.upload(t, "")

	w := s.postJSON("/chat", gin.H{"sessionId": res.SessionID, "message": "What is Alpha?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Empty(t, frames(t, w.Body.String()))
}

func TestChatMidStreamErrorFrame(t *testing.T) {
	s := newTestServer(t, fakeProvider{
		tokens:    []string{"Partial "},
		streamErr: errors.New("connection reset"),
	})
	res := s.upload(t, "")

	w := s.postJSON("/chat", gin.H{"sessionId": res.SessionID, "message": "What is Alpha?"})
	require.Equal(t, http.StatusOK, w.Code)

	got := frames(t, w.Body.String())
	require.Len(t, got, 2)
	assert.True(t, got[0].Success)
	assert.False(t, got[1].Success)
	assert.Equal(t, services.ClientErrorMessage, got[1].Error)
	assert.Empty(t, got[1].Sources)
}

func TestChatNonStreaming(t *testing.T) {
	s := newTestServer(t, fakeProvider{tokens: []string{"Alpha ", "is first."}})
	res := s.upload(t, "")

	w := s.postJSON("/chat", gin.H{"sessionId": res.SessionID, "message": "What is Alpha?", "stream": false})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success  bool            `json:"success"`
		Response string          `json:"response"`
		Sources  []models.Source `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Alpha is first.", body.Response)
	assert.NotEmpty(t, body.Sources)
}

func TestChatErrors(t *testing.T) {
	s := newTestServer(t, fakeProvider{tokens: []string{"x"}})
	empty := s.rag.Registry.Create()

	tests := []struct {
		name     string
		body     gin.H
		wantCode int
		wantErr  string
	}{
		{"missing message", gin.H{"sessionId": "abc"}, http.StatusBadRequest, "invalid_input"},
		{"unknown session", gin.H{"sessionId": "abc", "message": "hi"}, http.StatusNotFound, "session_not_found"},
		{"session without documents", gin.H{"sessionId": empty, "message": "hi"}, http.StatusBadRequest, "no_documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.postJSON("/chat", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantErr)
			assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
		})
	}
}

func TestCleanupEndpoint(t *testing.T) {
	s := newTestServer(t, fakeProvider{})
	res := s.upload(t, "")

	w := s.postJSON("/cleanup", gin.H{"sessionId": res.SessionID})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success            bool     `json:"success"`
		DeletedCollections []string `json:"deletedCollections"`
		Warnings           []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, []string{res.CollectionName}, body.DeletedCollections)
	assert.NotNil(t, body.Warnings)
	assert.Empty(t, s.store.Collections())

	w = s.postJSON("/cleanup", gin.H{"sessionId": res.SessionID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.postJSON("/cleanup", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSession(t *testing.T) {
	s := newTestServer(t, fakeProvider{})
	res := s.upload(t, "")

	w := s.do(httptest.NewRequest(http.MethodGet, "/sessions/"+res.SessionID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Session models.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, res.SessionID, body.Session.ID)
	require.Len(t, body.Session.Collections, 1)
	assert.Equal(t, "letters.pdf", body.Session.Collections[0].FileName)

	w = s.do(httptest.NewRequest(http.MethodGet, "/sessions/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, fakeProvider{})

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string `json:"status"`
		LLM    struct {
			Provider       string `json:"provider"`
			CircuitBreaker string `json:"circuitBreaker"`
		} `json:"llm"`
		VectorStore string `json:"vectorStore"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "fake", body.LLM.Provider)
	assert.Equal(t, "closed", body.LLM.CircuitBreaker)
	assert.Equal(t, "memory", body.VectorStore)
}

func TestValidateUpload(t *testing.T) {
	pdfHeader := func(name, ct string, size int64) *multipart.FileHeader {
		h := &multipart.FileHeader{Filename: name, Size: size, Header: make(map[string][]string)}
		if ct != "" {
			h.Header.Set("Content-Type", ct)
		}
		return h
	}

	tests := []struct {
		name     string
		header   *multipart.FileHeader
		wantCode string
	}{
		{"pdf extension", pdfHeader("report.PDF", "application/octet-stream", 10), ""},
		{"pdf content type", pdfHeader("report", "application/pdf", 10), ""},
		{"too large", pdfHeader("report.pdf", "", 101), "file_too_large"},
		{"empty", pdfHeader("report.pdf", "", 0), "empty_file"},
		{"traversal", pdfHeader("../etc/report.pdf", "", 10), "invalid_file_name"},
		{"long name", pdfHeader(strings.Repeat("a", 256)+".pdf", "", 10), "invalid_file_name"},
		{"other type", pdfHeader("notes.txt", "text/plain", 10), "invalid_file_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateUpload(tt.header, 100)
			if tt.wantCode == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.code)
		})
	}
}
