package routes

import (
	"mime/multipart"
	"net/http"
	"strings"
)

type uploadError struct {
	status  int
	code    string
	message string
}

var dangerousNameParts = []string{"../", "..\\", "<", ">", "\"", "|", "\x00"}

// validateUpload accepts a file declared as PDF either by content type or by
// a .pdf extension, within the size limit and with a safe name.
func validateUpload(header *multipart.FileHeader, maxSize int64) *uploadError {
	if header.Size > maxSize {
		return &uploadError{http.StatusRequestEntityTooLarge, "file_too_large", "File size exceeds maximum limit"}
	}
	if header.Size == 0 {
		return &uploadError{http.StatusBadRequest, "empty_file", "Uploaded file is empty"}
	}

	name := header.Filename
	if name == "" || len(name) > 255 {
		return &uploadError{http.StatusBadRequest, "invalid_file_name", "File name is missing or too long (max 255 characters)"}
	}
	for _, part := range dangerousNameParts {
		if strings.Contains(name, part) {
			return &uploadError{http.StatusBadRequest, "invalid_file_name", "File name contains invalid characters"}
		}
	}

	ct := header.Header.Get("Content-Type")
	if !strings.Contains(ct, "pdf") && !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return &uploadError{http.StatusBadRequest, "invalid_file_type", "Only PDF files are allowed"}
	}
	return nil
}
