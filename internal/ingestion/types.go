// Package ingestion defines the request types, Kafka event schemas and upload
// helpers used when documents enter the analysis pipeline.
package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/textanalytics"
)

// Content types assigned to documents.
const (
	ContentTypePDF      = "pdf"
	ContentTypeText     = "text"
	ContentTypeDocument = "document"
	ContentTypeImage    = "image"

	// Web pages, classified from the URL.
	ContentTypeArticle     = "article"
	ContentTypeSocialMedia = "social_media"
	ContentTypeVideo       = "video"
)

// IngestRequest is the JSON body accepted by the analyze endpoint and carried
// by ingest events.
type IngestRequest struct {
	DocumentID  string   `json:"document_id,omitempty"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	ContentType string   `json:"content_type,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// IngestResponse is returned when a document is queued for asynchronous
// analysis.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// IngestEvent is the Kafka message payload published on the ingest topic.
type IngestEvent struct {
	DocumentID  string    `json:"document_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	SourceURL   string    `json:"source_url,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	ContentHash string    `json:"content_hash"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// UploadMetadata describes a file received through the upload endpoint.
type UploadMetadata struct {
	OriginalName string `json:"original_name"`
	StorageKey   string `json:"storage_key"`
	Size         int64  `json:"size"`
	SizeLabel    string `json:"size_label"`
	ContentType  string `json:"content_type"`
}

// DetectContentType classifies a file by its extension.
func DetectContentType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "pdf":
		return ContentTypePDF
	case "txt", "md":
		return ContentTypeText
	case "doc", "docx":
		return ContentTypeDocument
	case "png", "jpg", "jpeg", "gif":
		return ContentTypeImage
	default:
		return ContentTypeDocument
	}
}

// DescribeUpload builds the metadata stored alongside an uploaded file.
func DescribeUpload(filename string, size int64) UploadMetadata {
	return UploadMetadata{
		OriginalName: filename,
		StorageKey:   textanalytics.SanitizeFilename(filename),
		Size:         size,
		SizeLabel:    textanalytics.FormatFileSize(size),
		ContentType:  DetectContentType(filename),
	}
}

// WordCount returns the number of whitespace-separated words in content.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// ContentHash returns the hex SHA-256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Truncate shortens content to at most maxRunes runes.
func Truncate(content string, maxRunes int) string {
	if maxRunes <= 0 {
		return content
	}
	r := []rune(content)
	if len(r) <= maxRunes {
		return content
	}
	return string(r[:maxRunes])
}
