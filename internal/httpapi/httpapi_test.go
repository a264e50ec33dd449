package httpapi_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deepshield/imagewatermark/internal/httpapi"
	"github.com/deepshield/imagewatermark/internal/keys"
	"github.com/deepshield/imagewatermark/internal/ledger"
)

func testHandler(t *testing.T) *httpapi.Handler {
	t.Helper()
	l, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	return &httpapi.Handler{
		Ledger:        l,
		Log:           slog.Default(),
		DataDir:       t.TempDir(),
		CSRFSecret:    "0123456789abcdef0123456789abcdef",
		BaseURL:       "http://localhost",
		DefaultAlpha:  0.1,
		DefaultLength: 32,
		DefaultThresh: 80,
	}
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 11) % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, fileName string, fileBytes []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(fw, bytes.NewReader(fileBytes)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestEmbedThenVerifyRoundTrip(t *testing.T) {
	h := testHandler(t)
	rl := httpapi.NewRateLimiter(1000, 1000)
	defer rl.Stop()
	router := h.Routes(rl)

	privDER, pubDER, err := keys.Generate(2048)
	if err != nil {
		t.Fatal(err)
	}

	embedReq := multipartRequest(t, "/v1/watermark/embed", map[string]string{
		"private_key": base64.StdEncoding.EncodeToString(privDER),
		"public_key":  base64.StdEncoding.EncodeToString(pubDER),
		"length":      "24",
		"alpha":       "0.15",
	}, "image", "source.png", samplePNG(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, embedReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("embed status = %d, body=%s", rec.Code, rec.Body.String())
	}

	var embedOut struct {
		ImageID      string `json:"image_id"`
		WatermarkPNG string `json:"watermark_png_b64"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &embedOut); err != nil {
		t.Fatal(err)
	}
	if embedOut.ImageID == "" {
		t.Fatal("expected non-empty image_id")
	}
	watermarkedPNG, err := base64.StdEncoding.DecodeString(embedOut.WatermarkPNG)
	if err != nil {
		t.Fatal(err)
	}

	verifyReq := multipartRequest(t, "/v1/watermark/verify", map[string]string{
		"image_id": embedOut.ImageID,
	}, "image", "watermarked.png", watermarkedPNG)

	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, verifyReq)
	if rec2.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body=%s", rec2.Code, rec2.Body.String())
	}

	var verifyOut struct {
		Similar bool    `json:"similar"`
		Score   float64 `json:"score"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &verifyOut); err != nil {
		t.Fatal(err)
	}
	if !verifyOut.Similar || verifyOut.Score != 100.0 {
		t.Fatalf("expected (true, 100.0), got (%v, %v)", verifyOut.Similar, verifyOut.Score)
	}
}

func TestVerifyUnknownImageID(t *testing.T) {
	h := testHandler(t)
	rl := httpapi.NewRateLimiter(1000, 1000)
	defer rl.Stop()
	router := h.Routes(rl)

	req := multipartRequest(t, "/v1/watermark/verify", map[string]string{
		"image_id": "does-not-exist",
	}, "image", "x.png", samplePNG(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGenerateKeysEndpoint(t *testing.T) {
	h := testHandler(t)
	rl := httpapi.NewRateLimiter(1000, 1000)
	defer rl.Stop()
	router := h.Routes(rl)

	req := httptest.NewRequest(http.MethodPost, "/v1/keys", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}

	var out struct {
		PrivateKeyDER string `json:"private_key_der"`
		PublicKeyDER  string `json:"public_key_der"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.PrivateKeyDER == "" || out.PublicKeyDER == "" {
		t.Fatal("expected non-empty key material")
	}
}
