package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/models"
)

// TextExtractor turns raw document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, content []byte) (string, error)
}

// PDFExtractor handles robust PDF text extraction
type PDFExtractor struct {
	// Methods are tried in order until one produces good quality text.
	methods []extractionMethod
}

type extractionMethod struct {
	name    string
	extract func(context.Context, []byte) (string, error)
}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor() *PDFExtractor {
	e := &PDFExtractor{}
	e.methods = []extractionMethod{
		{"go-pdf", e.extractWithGoPDF},
		{"poppler", e.extractWithPoppler},
	}
	return e
}

var pdfMagic = []byte("%PDF-")

// Extract extracts text from PDF using multiple methods with fallbacks.
// Failures wrap models.ErrExtraction.
func (e *PDFExtractor) Extract(ctx context.Context, content []byte) (string, error) {
	start := time.Now()

	if !bytes.HasPrefix(bytes.TrimLeft(content, "\x00\t\r\n "), pdfMagic) {
		return "", fmt.Errorf("%w: input is not a PDF document", models.ErrExtraction)
	}
	if len(content) > 200<<20 { // 200MB safety cap
		return "", fmt.Errorf("%w: pdf too large for in-memory extraction", models.ErrExtraction)
	}

	var lastErr error
	best, bestQuality := "", -1.0

	for _, method := range e.methods {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", models.ErrExtraction, err)
		}

		text, err := method.extract(ctx, content)
		if err != nil {
			logger.Debug("Extraction method failed", "method", method.name, "error", err)
			lastErr = err
			continue
		}

		quality := evaluateTextQuality(text)
		logger.Debug("Extraction method finished", "method", method.name, "chars", len(text), "quality", quality)

		if quality >= 0.7 {
			logger.Info("PDF text extracted", "method", method.name, "duration", time.Since(start))
			return text, nil
		}
		if quality > bestQuality {
			best, bestQuality = text, quality
		}
	}

	if strings.TrimSpace(best) != "" {
		logger.Info("PDF text extracted", "quality", bestQuality, "duration", time.Since(start))
		return best, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("document contains no extractable text")
	}
	return "", fmt.Errorf("%w: all extraction methods failed: %v", models.ErrExtraction, lastErr)
}

// extractWithGoPDF uses the Go PDF library for extraction
func (e *PDFExtractor) extractWithGoPDF(ctx context.Context, content []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("go-pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var pages []string
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, strings.TrimSpace(pageText))
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("no text extracted by go-pdf")
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractWithPoppler uses poppler-utils (pdftotext) for extraction
func (e *PDFExtractor) extractWithPoppler(ctx context.Context, content []byte) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not available")
	}

	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted by pdftotext")
	}
	return text, nil
}

var goodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+\b`),       // Capitalized words
	regexp.MustCompile(`\b\d{1,3}[,.]?\d{3}\b`), // Numbers with separators
	regexp.MustCompile(`[.!?]\s+[A-Z]`),         // Sentence boundaries
	regexp.MustCompile(`\b(the|and|or|of|to|in|for|with|on|at|by|from)\b`),
}

// evaluateTextQuality scores extracted text between 0 and 1.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == '\uFFFD':
			corrupted++
		case r >= 32 && r <= 126, r == '\n', r == '\t':
			printable++
		case r > 127:
			// Letters outside ASCII are fine, control runs are not.
			printable++
		default:
			corrupted++
		}
	}

	total := float64(len([]rune(text)))
	alphanumericRatio := float64(alphanumeric) / total

	score := float64(printable) / total * 0.4
	if alphanumericRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphanumericRatio
	}
	score -= float64(corrupted) / total * 2.0
	if len(text) > 100 {
		score += 0.1
	}

	matched := 0
	for _, p := range goodPatterns {
		if p.MatchString(text) {
			matched++
		}
	}
	if matched >= 3 {
		score += 0.2
	}

	return min(max(score, 0), 1)
}
