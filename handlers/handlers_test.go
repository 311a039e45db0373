package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"metadata-injector/audio"
	"metadata-injector/config"
	"metadata-injector/errors"
	"metadata-injector/metadata"
	"metadata-injector/models"
	"metadata-injector/storage"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedGenerator metadata.TagSet

func (g fixedGenerator) Generate() metadata.TagSet { return metadata.TagSet(g) }

var testTags = fixedGenerator{
	Title:   "Night Drive",
	Artist:  "Luna Park",
	Album:   "Afterglow",
	Year:    "2011",
	Comment: "Remastered",
	Genre:   "Ambient",
	Track:   "4",
}

type testServer struct {
	router *gin.Engine
	store  *storage.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.AllowedExtensions = append(cfg.AllowedExtensions, ".wav")
	cfg.CORSOrigins = []string{"http://localhost:3000"}

	store, err := storage.NewOS(t.TempDir())
	require.NoError(t, err)

	h := NewMetadataHandler(cfg, audio.New(audio.WithGenerator(testTags)), store, nil)
	router, err := NewRouter(cfg, zerolog.Nop(), h)
	require.NoError(t, err)
	return &testServer{router: router, store: store}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) upload(t *testing.T, path, name string, contents []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadField, name)
	require.NoError(t, err)
	_, err = part.Write(contents)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// wavBytes returns a short 16 bit mono PCM file
func wavBytes(t *testing.T) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: 16,
		Data:           make([]int, 400),
	}
	for i := range buf.Data {
		buf.Data[i] = (i%32 - 16) * 1024
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	return contents
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var resp models.HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
}

func TestFormats(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/api/v1/formats")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.FormatsResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{".mp4", ".mkv", ".wmv", ".asf", ".wav"}, resp.Extensions)
}

func TestRandomMetadata(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/api/v1/metadata/random")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.MetadataResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.NoError(t, resp.Metadata.Validate())
}

func TestPools(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/api/v1/metadata/pools")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PoolsResponse
	decode(t, w, &resp)
	assert.Equal(t, metadata.Titles(), resp.Titles)
	assert.Equal(t, metadata.Genres(), resp.Genres)
	assert.Equal(t, models.Range{Min: metadata.MinYear, Max: metadata.MaxYear}, resp.Years)
	assert.Equal(t, models.Range{Min: metadata.MinTrack, Max: metadata.MaxTrack}, resp.Tracks)
	assert.Equal(t, metadata.TrackTotal, resp.TrackTotal)
}

func TestInjectDownloadDelete(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "/api/v1/metadata/inject", "My Song.wav", wavBytes(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.InjectResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, metadata.TagSet(testTags), resp.Metadata)
	assert.Equal(t, "My Song.wav", resp.File.Filename)
	assert.Equal(t, "audio/wav", resp.File.FileType)
	assert.Equal(t, "/api/v1/metadata/download/"+resp.ID, resp.DownloadURL)

	up, err := s.store.Lookup(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, up.Size, resp.File.FileSize)

	w = s.get(resp.DownloadURL)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	_, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "processed_My Song.wav", params["filename"])

	// the download is the tagged file
	tagged := filepath.Join(t.TempDir(), "tagged.wav")
	require.NoError(t, os.WriteFile(tagged, w.Body.Bytes(), 0o644))
	tags, err := audio.New().ReadTags(context.Background(), tagged)
	require.NoError(t, err)
	assert.Equal(t, "Night Drive", tags.Title)
	assert.Equal(t, "Luna Park", tags.Artist)

	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/metadata/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.get(resp.DownloadURL)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/metadata/"+resp.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInjectRejectsExtension(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"notes.txt", "song.mp3", "noext"} {
		w := s.upload(t, "/api/v1/metadata/inject", name, []byte("data"))
		assert.Equal(t, http.StatusBadRequest, w.Code, name)

		var resp models.ErrorResponse
		decode(t, w, &resp)
		assert.False(t, resp.Success)
		assert.Equal(t, "unsupported format", resp.Kind)
		assert.Contains(t, resp.Message, ".mp4, .mkv, .wmv, .asf, .wav")
	}

	entries, err := os.ReadDir(s.store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInjectMissingFile(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/metadata/inject", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	w := s.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp models.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "invalid argument", resp.Kind)
}

func TestInjectCorrupt(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "/api/v1/metadata/inject", "broken.mp4", []byte("this is not an mp4 file at all"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp models.ErrorResponse
	decode(t, w, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "failed to open file", resp.Kind)

	// failed uploads are not kept
	entries, err := os.ReadDir(s.store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadUnknown(t *testing.T) {
	s := newTestServer(t)

	for _, id := range []string{"nope", "cn3kb1s0000000000000"} {
		w := s.get("/api/v1/metadata/download/" + id)
		assert.Equal(t, http.StatusNotFound, w.Code, id)
	}
}

func TestInspect(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "/api/v1/metadata/inspect", "tone.wav", wavBytes(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.InspectResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "tone.wav", resp.Report.Path)
	assert.Equal(t, "8000", resp.Report.Details["sample_rate"])

	// inspected files are not kept
	entries, err := os.ReadDir(s.store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/metadata/inject", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := s.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = s.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNewRouterRejectsBadOrigin(t *testing.T) {
	cfg := config.Default()
	h := NewMetadataHandler(cfg, audio.New(), nil, nil)

	cfg.CORSOrigins = []string{"localhost:3000"}
	_, err := NewRouter(cfg, zerolog.Nop(), h)
	assert.True(t, errors.Is(errors.InvalidArgument, err), "%v", err)

	// an empty list disables CORS
	cfg.CORSOrigins = nil
	_, err = NewRouter(cfg, zerolog.Nop(), h)
	assert.NoError(t, err)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)

	s.get("/api/v1/health")
	s.upload(t, "/api/v1/metadata/inject", "tone.wav", wavBytes(t))

	w := s.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `injector_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`)
	assert.Contains(t, text, `injector_injections_total{format=".wav",result="ok"} 1`)
	assert.Contains(t, text, "injector_upload_bytes_total")
	assert.Contains(t, text, "go_goroutines")
}
