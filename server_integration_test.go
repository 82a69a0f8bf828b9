package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"qayd/models"
	"qayd/pkg/arabic"
	"qayd/pkg/storage"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) http.Handler {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	jwtSecret = []byte("test-secret")
	initDB()
	r := gin.Default()
	setupRoutes(r)
	return r
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register organization account
	regBody, _ := json.Marshal(map[string]string{"username": "org1", "password": "pass01", "organization": "Test Org"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 2. Login
	loginBody, _ := json.Marshal(map[string]string{"username": "org1", "password": "pass01"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}

	// 3. Bulk upload: one valid row and one missing its detention date
	csvData := "full_name,date_of_detention,last_seen_location,gender,status\n" +
		fmt.Sprintf("Integration Test Subject %d,2013-05-21,Damascus,male,detained\n", time.Now().UnixNano()) +
		"No Date Person,,Aleppo,,\n"
	sessionID := uploadCSV(t, r, token, csvData)

	// 4. Poll until terminal
	sess := pollSession(t, r, token, sessionID)
	if sess["status"] != "completed" {
		t.Fatalf("expected completed session, got %+v", sess)
	}
	if int(sess["validRecords"].(float64)) != 1 || int(sess["invalidRecords"].(float64)) != 1 {
		t.Fatalf("unexpected counters: %+v", sess)
	}
	if int(sess["progress"].(float64)) != 100 {
		t.Fatalf("expected progress 100, got %+v", sess["progress"])
	}

	// 4b. Re-uploading the same file skips the valid row as a duplicate
	sess = pollSession(t, r, token, uploadCSV(t, r, token, csvData))
	if sess["status"] != "completed" {
		t.Fatalf("expected completed session, got %+v", sess)
	}
	if int(sess["skippedDuplicates"].(float64)) != 1 || int(sess["validRecords"].(float64)) != 0 {
		t.Fatalf("expected duplicate skip on re-upload, got %+v", sess)
	}

	// 5. Status poll for unknown session is a 404
	resp = performRequest(r, http.MethodGet, "/uploads/status/00000000-0000-0000-0000-000000000000", nil, token, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}

	// 6. Template download carries the BOM
	resp = performRequest(r, http.MethodGet, "/template", nil, "", "")
	if resp.Code != 200 || !bytes.HasPrefix(resp.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatalf("template missing BOM, status=%d", resp.Code)
	}

	// 7. Public search finds the ingested record
	resp = performRequest(r, http.MethodGet, "/search?q=Integration+Test+Subject", nil, "", "")
	if resp.Code != 200 {
		t.Fatalf("search failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var searchResp struct {
		Results []map[string]any `json:"results"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &searchResp)
	if len(searchResp.Results) == 0 {
		t.Fatalf("search returned no results: %s", resp.Body.String())
	}
	recordID := searchResp.Results[0]["id"].(float64)

	// 7b. Location filter narrows the same query
	resp = performRequest(r, http.MethodGet, "/search?q=Integration+Test+Subject&location=Damascus", nil, "", "")
	searchResp.Results = nil
	_ = json.Unmarshal(resp.Body.Bytes(), &searchResp)
	if len(searchResp.Results) == 0 {
		t.Fatalf("location filter dropped a matching record: %s", resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/search?q=Integration+Test+Subject&location=Nowhereville", nil, "", "")
	searchResp.Results = nil
	_ = json.Unmarshal(resp.Body.Bytes(), &searchResp)
	if len(searchResp.Results) != 0 {
		t.Fatalf("location filter did not apply: %s", resp.Body.String())
	}

	// 8. Correct the record; contact info must merge, not overwrite
	updBody, _ := json.Marshal(map[string]any{
		"recordId":     recordID,
		"updates":      map[string]string{"contact_info": "555-2222"},
		"updateReason": "new contact",
	})
	resp = performRequest(r, http.MethodPost, "/records/update", bytes.NewBuffer(updBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("update failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/records/%.0f", recordID), nil, "", "")
	var rec map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &rec)
	if rec["contact_info"] != "555-2222" {
		t.Fatalf("expected contact_info set, got %+v", rec["contact_info"])
	}

	// 9. Health check
	resp = performRequest(r, http.MethodGet, "/health", nil, "", "")
	if resp.Code != 200 {
		t.Fatalf("health check failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 10. Unauthorized upload should be 401
	unauth := performRequest(r, http.MethodPost, "/uploads", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized upload, got %d", unauth.Code)
	}
}

// memObjectStore stands in for MinIO so the attachment flow runs without an
// object storage deployment.
type memObjectStore struct {
	objects map[string][]byte
}

func (m *memObjectStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	m.objects[key] = data
	return nil
}

func (m *memObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return data, nil
}

func (m *memObjectStore) UploadThumbnail(_ context.Context, key string, data []byte) (string, error) {
	thumb, err := storage.Thumbnail(data)
	if err != nil {
		return "", err
	}
	thumbKey := "thumbs/" + key + ".jpg"
	m.objects[thumbKey] = thumb
	return thumbKey, nil
}

func TestAttachmentFlow(t *testing.T) {
	r := setupTestServer(t)
	docStore = &memObjectStore{objects: map[string][]byte{}}
	defer func() { docStore = nil }()

	regBody, _ := json.Marshal(map[string]string{"username": "org2", "password": "pass02", "organization": "Test Org 2"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	loginBody, _ := json.Marshal(map[string]string{"username": "org2", "password": "pass02"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}

	name := fmt.Sprintf("Attachment Subject %d", time.Now().UnixNano())
	rec := models.Detainee{
		FullName:        name,
		NormalizedName:  arabic.Normalize(name),
		DateOfDetention: time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("could not create record: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 512, 256))
	for x := 0; x < 512; x++ {
		img.Set(x, x%256, color.RGBA{R: uint8(x % 256), A: 255})
	}
	var pngBuf bytes.Buffer
	_ = png.Encode(&pngBuf, img)

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="photo.png"`},
		"Content-Type":        {"image/png"},
	})
	_, _ = part.Write(pngBuf.Bytes())
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/documents/%d", rec.ID), buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("document upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var upResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &upResp)
	docID := upResp["id"].(float64)
	if upResp["thumbnailKey"] == "" {
		t.Fatalf("expected a thumbnail key for an image upload: %+v", upResp)
	}

	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/records/%d/documents", rec.ID), nil, "", "")
	var docs []map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &docs)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %s", resp.Body.String())
	}

	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/documents/%.0f/download", docID), nil, "", "")
	if resp.Code != 200 || !bytes.Equal(resp.Body.Bytes(), pngBuf.Bytes()) {
		t.Fatalf("download did not return the stored object, status=%d len=%d", resp.Code, resp.Body.Len())
	}

	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/documents/%.0f/download?thumb=1", docID), nil, "", "")
	if resp.Code != 200 {
		t.Fatalf("thumbnail download failed status=%d", resp.Code)
	}
	thumb, err := jpeg.Decode(bytes.NewReader(resp.Body.Bytes()))
	if err != nil || thumb.Bounds().Dx() != 256 {
		t.Fatalf("expected a 256px-wide thumbnail, err=%v", err)
	}

	resp = performRequest(r, http.MethodGet, "/documents/999999/download", nil, "", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown document, got %d", resp.Code)
	}
}

func TestInboxWatcher(t *testing.T) {
	_ = setupTestServer(t)
	dir := t.TempDir()
	go watchInbox(dir)
	time.Sleep(300 * time.Millisecond) // let the watcher register

	for i := 0; i < 2; i++ {
		data := fmt.Sprintf("full_name,date_of_detention\nInbox Person %d-%d,2016-01-1%d\n", time.Now().UnixNano(), i, i)
		path := filepath.Join(dir, fmt.Sprintf("batch%d.csv", i))
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	// both files must land in processed/ even though they were dropped
	// back to back
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		entries, _ := os.ReadDir(filepath.Join(dir, "processed"))
		if len(entries) == 2 {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("inbox files were not processed in time")
}

func uploadCSV(t *testing.T, r http.Handler, token, csvData string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "batch.csv")
	_, _ = w.Write([]byte(csvData))
	_ = mw.Close()
	resp := performRequest(r, http.MethodPost, "/uploads", buf, token, mw.FormDataContentType())
	if resp.Code != http.StatusAccepted {
		t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var upResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &upResp)
	id, _ := upResp["sessionId"].(string)
	if id == "" {
		t.Fatalf("no session id in upload response: %s", resp.Body.String())
	}
	return id
}

func pollSession(t *testing.T, r http.Handler, token, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp := performRequest(r, http.MethodGet, "/uploads/status/"+id, nil, token, "")
		if resp.Code != 200 {
			t.Fatalf("status poll failed status=%d body=%s", resp.Code, resp.Body.String())
		}
		var sess map[string]any
		_ = json.Unmarshal(resp.Body.Bytes(), &sess)
		if sess["status"] == "completed" || sess["status"] == "failed" {
			return sess
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("session did not reach a terminal state in time")
	return nil
}
