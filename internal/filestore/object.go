package filestore

import (
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Object is a streaming handle to an object's content.
type Object interface {
	io.ReadCloser
	Info() *ObjectInfo
}

// ListOptions filters ListObjects.
type ListOptions struct {
	// Prefix restricts results to keys starting with it.
	Prefix string

	// Limit caps the number of results. 0 means no cap.
	Limit int
}
