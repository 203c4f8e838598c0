// Package protocol defines the HTTP request/response types of the
// namespace API.
package protocol

import "github.com/fruitsalade/explorer/pkg/models"

// Query parameter and multipart field names.
const (
	ParamPath  = "path"
	ParamToken = "token"
	FieldFile  = "file"
	FieldPath  = "path"
)

// ListResponse is returned by GET /fs?path={p}. Keys are normalized paths.
type ListResponse = models.Snapshot

// ContentResponse is returned by GET /fs/file?path={p}
type ContentResponse struct {
	Content string `json:"content"`
}

// SaveRequest is the body for PUT /fs/file. Path is the file path
// (directory + name).
type SaveRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// DeleteRequest is the body for DELETE /fs.
type DeleteRequest struct {
	Path     string `json:"path"`
	IsFolder bool   `json:"isFolder"`
}

// FolderRequest is the body for POST /fs/folder.
type FolderRequest struct {
	Path       string `json:"path"`
	FolderName string `json:"folderName"`
}

// AckResponse acknowledges a mutation. File is set when the mutation
// produced or changed a file record.
type AckResponse struct {
	OK   bool               `json:"ok"`
	File *models.FileRecord `json:"file,omitempty"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// LoginRequest is the body for POST /auth/token.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries an issued bearer token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// Event types published on GET /fs/events.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
)

// SSEEvent is one server-sent change notification. Path is the file
// path, or the folder path (with trailing slash) for folders.
type SSEEvent struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	IsFolder  bool   `json:"isFolder,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
