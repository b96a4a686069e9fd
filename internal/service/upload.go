package service

import (
	"context"
	"net/http"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
)

// UploadService wraps the ingestion backend.
type UploadService struct {
	c Caller
}

// NewUploadService creates an upload service.
func NewUploadService(c Caller) *UploadService {
	return &UploadService{c: c}
}

// Upload hands a source link to the ingestion pipeline. The resulting item
// shows up in item listings some time after this returns.
func (s *UploadService) Upload(ctx context.Context, in models.UploadRequest) (*models.UploadResponse, error) {
	resp, err := call[models.UploadResponse](ctx, s.c, client.Request{
		Backend: client.BackendIngestion,
		Method:  http.MethodPost,
		Path:    "api/v1/upload",
		Body:    in,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
