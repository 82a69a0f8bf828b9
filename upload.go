package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"qayd/models"
	"qayd/pkg/arabic"
	"qayd/pkg/ingest"
)

// maxUploadBytes caps both bulk files and attachments.
const maxUploadBytes = 10 * 1024 * 1024

// bulkUploadHandler accepts a CSV/XLSX batch, creates the upload session and
// returns its id immediately; rows are processed by a background goroutine
// that is the session's only writer. Clients follow progress via
// /uploads/status/:id.
func bulkUploadHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 10MB)"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer src.Close()

	records, err := ingest.Parse(file.Filename, src)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidFileFormat) || errors.Is(err, ingest.ErrEmptyFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not parse upload"})
		return
	}

	orchestrator := ingest.NewOrchestrator(ingest.NewStore(db))
	uid := user.ID
	sess, err := orchestrator.Begin(c.Request.Context(), file.Filename, len(records), &uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create upload session"})
		return
	}
	// request context dies with this handler; the batch keeps its own
	go orchestrator.Process(context.Background(), sess, records)

	c.JSON(http.StatusAccepted, gin.H{"sessionId": sess.ID, "totalRecords": sess.TotalRecords})
}

// uploadStatusHandler returns the live snapshot a poller renders.
func uploadStatusHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload session not found"})
		return
	}
	sess, err := ingest.NewStore(db).GetSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ingest.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Upload session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                sess.ID,
		"status":            sess.Status,
		"fileName":          sess.FileName,
		"totalRecords":      sess.TotalRecords,
		"processedRecords":  sess.ProcessedRecords,
		"validRecords":      sess.ValidRecords,
		"invalidRecords":    sess.InvalidRecords,
		"duplicateRecords":  sess.DuplicateRecords,
		"skippedDuplicates": sess.SkippedDuplicates,
		"progress":          sess.Progress(),
		"errors":            sess.Errors,
		"error":             sess.ErrorMessage,
		"createdAt":         sess.CreatedAt,
		"updatedAt":         sess.UpdatedAt,
		"processingDetails": sess.ProcessingDetails,
	})
}

// listSessionsHandler lists recent sessions; admin sees all, an organization
// account only its own.
func listSessionsHandler(c *gin.Context) {
	role, _ := c.Get("role")
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var sessions []models.UploadSession
	q := db.Model(&models.UploadSession{})
	if role != "administrator" {
		q = q.Where("user_id = ?", user.ID)
	}
	if err := q.Order("created_at desc").Limit(50).Find(&sessions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// csvTemplateHandler serves the canonical upload template. The byte-order
// mark keeps Excel happy with UTF-8 Arabic content.
func csvTemplateHandler(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="detainee_records_template.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte("\uFEFF"+ingest.TemplateHeader+"\n"))
}

// updateRecordHandler applies a post-ingestion correction. Free-text fields
// are merged, never overwritten, and every change lands in the append-only
// history with the operator's reason. The search view refresh afterwards is
// best-effort: the write already succeeded.
func updateRecordHandler(c *gin.Context) {
	var req struct {
		RecordID     uint              `json:"recordId" binding:"required"`
		Updates      map[string]string `json:"updates" binding:"required"`
		UpdateReason string            `json:"updateReason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var d models.Detainee
	if err := db.First(&d, req.RecordID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	changed := d.ApplyUpdates(req.Updates, req.UpdateReason, time.Now().UTC())
	if len(changed) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "changed": []string{}})
		return
	}
	for _, field := range changed {
		if field == "last_seen_location" {
			d.NormalizedLocation = arabic.Normalize(d.LastSeenLocation)
		}
	}
	if err := db.Save(&d).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	refreshSearchView()

	c.JSON(http.StatusOK, gin.H{"success": true, "changed": changed})
}

// refreshSearchView re-indexes the public search view. Failure is logged and
// swallowed.
func refreshSearchView() {
	if err := db.Exec(`REFRESH MATERIALIZED VIEW CONCURRENTLY detainees_search`).Error; err != nil {
		zlog.Warn().Err(err).Msg("search view refresh failed")
	}
}

// uploadDocumentHandler attaches a photo or scanned document to a record.
func uploadDocumentHandler(c *gin.Context) {
	if docStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage not configured"})
		return
	}
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var d models.Detainee
	if err := db.First(&d, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 10MB)"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}

	contentType := file.Header.Get("Content-Type")
	key := fmt.Sprintf("records/%d/%s-%s", d.ID, uuid.NewString(), file.Filename)
	ctx := c.Request.Context()
	if err := docStore.Upload(ctx, key, data, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage upload failed"})
		return
	}
	thumbKey := ""
	if strings.HasPrefix(contentType, "image/") {
		if tk, err := docStore.UploadThumbnail(ctx, key, data); err == nil {
			thumbKey = tk
		} else {
			zlog.Warn().Err(err).Str("key", key).Msg("thumbnail generation failed")
		}
	}

	uid := user.ID
	doc := models.Document{
		DetaineeID:   d.ID,
		FileName:     file.Filename,
		ObjectKey:    key,
		ThumbnailKey: thumbKey,
		ContentType:  contentType,
		SizeBytes:    file.Size,
		UploadedBy:   &uid,
	}
	if err := db.Create(&doc).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": doc.ID, "objectKey": key, "thumbnailKey": thumbKey})
}

func listDocumentsHandler(c *gin.Context) {
	var docs []models.Document
	if err := db.Where("detainee_id = ?", c.Param("id")).Order("id desc").Find(&docs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// downloadDocumentHandler streams a stored attachment back to the client.
// ?thumb=1 serves the thumbnail object when the attachment has one.
func downloadDocumentHandler(c *gin.Context) {
	if docStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage not configured"})
		return
	}
	var doc models.Document
	if err := db.First(&doc, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	key := doc.ObjectKey
	contentType := doc.ContentType
	if c.Query("thumb") == "1" && doc.ThumbnailKey != "" {
		key = doc.ThumbnailKey
		contentType = "image/jpeg"
	}
	data, err := docStore.Download(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage download failed"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Data(http.StatusOK, contentType, data)
}
