package chatapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	serverops "github.com/tourdesk/tourdesk/apiframework"
	"github.com/tourdesk/tourdesk/chatservice"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/libauth"
)

// maxFileSize bounds attachment uploads.
const maxFileSize = 10 << 20 // 10 MiB

func AddFileRoutes(mux *http.ServeMux, chatService chatservice.Service) {
	f := &fileManager{service: chatService}

	mux.HandleFunc("POST /api/files", f.uploadFile)
	mux.HandleFunc("GET /api/files/{id}", f.downloadFile)
}

type fileManager struct {
	service chatservice.Service
}

// Uploads an attachment as multipart form data under the "file" field. The
// returned file ID is referenced by messages.
func (f *fileManager) uploadFile(w http.ResponseWriter, r *http.Request) {
	identity, err := libauth.IdentityFrom(r.Context())
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFileSize)
	if err := r.ParseMultipartForm(maxFileSize); err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		_ = serverops.Error(w, r, fmt.Errorf("reading upload: %w", err), serverops.CreateOperation)
		return
	}
	if len(data) == 0 {
		_ = serverops.Error(w, r, serverops.ErrFileEmpty, serverops.CreateOperation)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	file := &chatstore.File{
		ID:          uuid.New().String(),
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
		UploadedBy:  identity,
	}
	if err := f.service.UploadFile(r.Context(), file); err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusCreated, file) // @response chatstore.File
}

// Serves the raw bytes of an attachment.
func (f *fileManager) downloadFile(w http.ResponseWriter, r *http.Request) {
	id := serverops.GetPathParam(r, "id", "The unique identifier for the file.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.GetOperation)
		return
	}

	file, err := f.service.GetFile(r.Context(), id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.GetOperation)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}
