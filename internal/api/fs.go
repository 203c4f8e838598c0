package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metadata"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/internal/storage"
	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
	"github.com/fruitsalade/explorer/pkg/protocol"
)

// filePath splits a request file path into its normalized directory and
// name, rejecting names that are not a single segment.
func filePath(p string) (dir, name, fp string, err error) {
	if strings.TrimSpace(p) == "" {
		return "", "", "", fmt.Errorf("%w: missing path", backend.ErrInvalidName)
	}
	dir, name = pathkey.Split(p)
	if err := backend.ValidateName(name); err != nil {
		return "", "", "", err
	}
	return dir, name, pathkey.FilePath(dir, name), nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	dir := pathkey.Normalize(r.URL.Query().Get(protocol.ParamPath))

	entry, err := s.meta.List(r.Context(), dir)
	if err != nil {
		s.fail(w, r, "list "+dir, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.ListResponse{dir: entry})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	_, _, fp, err := filePath(r.URL.Query().Get(protocol.ParamPath))
	if err != nil {
		s.fail(w, r, "read", err)
		return
	}
	if _, err := s.meta.StatFile(r.Context(), fp); err != nil {
		s.fail(w, r, "read "+fp, err)
		return
	}

	rc, _, err := s.storage.GetObject(r.Context(), storage.Key(fp))
	if err != nil {
		s.fail(w, r, "read "+fp, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxUploadSize+1))
	if err != nil {
		s.fail(w, r, "read "+fp, err)
		return
	}
	if int64(len(data)) > s.maxUploadSize {
		s.sendError(w, http.StatusRequestEntityTooLarge, fp+" is too large to edit; download it instead")
		return
	}
	writeJSON(w, http.StatusOK, protocol.ContentResponse{Content: string(data)})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+multipartOverhead)

	var req protocol.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if code := errorStatus(err); code == http.StatusRequestEntityTooLarge {
			s.sendError(w, code, "request too large")
			return
		}
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	size := int64(len(req.Content))
	if size > s.maxUploadSize {
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("content of %d bytes exceeds limit of %d", size, s.maxUploadSize))
		return
	}

	dir, name, fp, err := filePath(req.Path)
	if err != nil {
		s.fail(w, r, "save", err)
		return
	}

	rec, created, err := s.writeFile(r.Context(), dir, name, strings.NewReader(req.Content), size)
	if err != nil {
		s.fail(w, r, "save "+fp, err)
		return
	}

	eventType := protocol.EventModify
	if created {
		eventType = protocol.EventCreate
	}
	s.publishEvent(eventType, fp, false)

	logging.WithContext(r.Context()).Info("file saved",
		zap.String("path", fp), zap.Int64("size", size), zap.Bool("created", created))
	writeJSON(w, http.StatusOK, protocol.AckResponse{OK: true, File: &rec})
}

// writeFile stores body and records the file in the namespace. The parent
// folder is checked first so no orphan object is written for a missing
// folder.
func (s *Server) writeFile(ctx context.Context, dir, name string, body io.Reader, size int64) (models.FileRecord, bool, error) {
	if _, err := s.meta.List(ctx, dir); err != nil {
		return models.FileRecord{}, false, err
	}
	fp := pathkey.FilePath(dir, name)
	if e, err := s.meta.Stat(ctx, pathkey.Join(dir, name)); err == nil && e.IsDir {
		return models.FileRecord{}, false, fmt.Errorf("%s: %w", fp, metadata.ErrExists)
	}

	if err := s.storage.PutObject(ctx, storage.Key(fp), body, size); err != nil {
		return models.FileRecord{}, false, fmt.Errorf("store content: %w", err)
	}
	e, created, err := s.meta.PutFile(ctx, dir, name, size)
	if err != nil {
		return models.FileRecord{}, false, err
	}
	if created {
		s.refreshCounts(ctx)
	}
	return e.Record(), created, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUploadSize+multipartOverhead {
		metrics.RecordUpload(0, false)
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload of %d bytes exceeds limit of %d", r.ContentLength, s.maxUploadSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		metrics.RecordUpload(0, false)
		if code := errorStatus(err); code == http.StatusRequestEntityTooLarge {
			s.sendError(w, code, "upload too large")
			return
		}
		s.sendError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(protocol.FieldFile)
	if err != nil {
		metrics.RecordUpload(0, false)
		s.sendError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	if header.Size > s.maxUploadSize {
		metrics.RecordUpload(0, false)
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file of %d bytes exceeds limit of %d", header.Size, s.maxUploadSize))
		return
	}

	dir := pathkey.Normalize(r.FormValue(protocol.FieldPath))
	name := header.Filename
	if err := backend.ValidateName(name); err != nil {
		metrics.RecordUpload(0, false)
		s.fail(w, r, "upload", err)
		return
	}
	fp := pathkey.FilePath(dir, name)

	rec, created, err := s.writeFile(r.Context(), dir, name, file, header.Size)
	if err != nil {
		metrics.RecordUpload(0, false)
		s.fail(w, r, "upload "+fp, err)
		return
	}
	metrics.RecordUpload(header.Size, true)

	eventType := protocol.EventModify
	if created {
		eventType = protocol.EventCreate
	}
	s.publishEvent(eventType, fp, false)

	logging.WithContext(r.Context()).Info("file uploaded",
		zap.String("path", fp), zap.Int64("size", header.Size))
	writeJSON(w, http.StatusCreated, protocol.AckResponse{OK: true, File: &rec})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	_, name, fp, err := filePath(r.URL.Query().Get(protocol.ParamPath))
	if err != nil {
		s.fail(w, r, "download", err)
		return
	}
	if _, err := s.meta.StatFile(r.Context(), fp); err != nil {
		s.fail(w, r, "download "+fp, err)
		return
	}

	rc, size, err := s.storage.GetObject(r.Context(), storage.Key(fp))
	if err != nil {
		s.fail(w, r, "download "+fp, err)
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil {
		logging.WithContext(r.Context()).Warn("download interrupted",
			zap.String("path", fp), zap.Int64("bytes", n), zap.Error(err))
	}
	metrics.RecordDownload(n)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req protocol.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := pathkey.Normalize(req.Path)
	if !req.IsFolder {
		_, _, fp, err := filePath(req.Path)
		if err != nil {
			s.fail(w, r, "delete", err)
			return
		}
		target = fp
	}

	ctx := r.Context()
	removed, err := s.meta.Delete(ctx, target, req.IsFolder)
	if err != nil {
		s.fail(w, r, "delete "+target, err)
		return
	}

	log := logging.WithContext(ctx)
	for _, e := range removed {
		if err := s.storage.DeleteObject(ctx, storage.Key(e.Path)); err != nil {
			// The namespace row is already gone; the object is orphaned.
			log.Warn("delete object failed", zap.String("path", e.Path), zap.Error(err))
		}
	}
	s.refreshCounts(ctx)
	s.publishEvent(protocol.EventDelete, target, req.IsFolder)

	log.Info("deleted", zap.String("path", target), zap.Bool("folder", req.IsFolder),
		zap.Int("files", len(removed)))
	writeJSON(w, http.StatusOK, protocol.AckResponse{OK: true})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req protocol.FolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := backend.ValidateName(req.FolderName); err != nil {
		s.fail(w, r, "create folder", err)
		return
	}

	e, err := s.meta.CreateFolder(r.Context(), req.Path, req.FolderName)
	if err != nil {
		s.fail(w, r, "create folder "+pathkey.Join(req.Path, req.FolderName), err)
		return
	}
	s.refreshCounts(r.Context())
	s.publishEvent(protocol.EventCreate, e.Path, true)

	logging.WithContext(r.Context()).Info("folder created", zap.String("path", e.Path))
	writeJSON(w, http.StatusCreated, protocol.AckResponse{OK: true})
}
