// Package httpapi exposes the embed/verify operations over HTTP, wired the
// way the teacher's internal/handler package wires its routes: chi for
// routing, gorilla/csrf for session-authenticated form traffic, and a
// per-IP rate limiter in front of the expensive (RSA signing, DWT/DCT)
// endpoints.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/csrf"

	"github.com/deepshield/imagewatermark/internal/generator"
	"github.com/deepshield/imagewatermark/internal/imageio"
	"github.com/deepshield/imagewatermark/internal/keys"
	"github.com/deepshield/imagewatermark/internal/ledger"
	"github.com/deepshield/imagewatermark/internal/position"
	"github.com/deepshield/imagewatermark/internal/strategy"
)

// Handler holds the dependencies every route needs.
type Handler struct {
	Ledger        *ledger.Ledger
	Log           *slog.Logger
	DataDir       string
	CSRFSecret    string
	BaseURL       string
	DefaultAlpha  float64
	DefaultLength int
	DefaultThresh float64
}

// Routes builds the chi router. authRL rate-limits the three CPU-heavy
// endpoints (key generation, embed, verify); csrf protection is only enforced for
// cookie-authenticated form traffic, matching the teacher's
// Bearer-token exemption.
func (h *Handler) Routes(authRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	csrfProtect := csrf.Protect(
		[]byte(h.CSRFSecret),
		csrf.Secure(strings.HasPrefix(h.BaseURL, "https")),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
	)
	r.Use(func(next http.Handler) http.Handler {
		protected := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			protected.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", h.Healthz)

	r.Group(func(r chi.Router) {
		r.Use(authRL.Middleware)
		r.Post("/v1/keys", h.GenerateKeys)
		r.Post("/v1/watermark/embed", h.Embed)
		r.Post("/v1/watermark/verify", h.Verify)
	})

	return r
}

// Healthz is a liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type keyPairResponse struct {
	PrivateKeyDER string `json:"private_key_der"`
	PublicKeyDER  string `json:"public_key_der"`
}

// GenerateKeys issues a fresh RSA key pair for demo/testing clients that
// don't already hold one.
func (h *Handler) GenerateKeys(w http.ResponseWriter, r *http.Request) {
	bits := keys.DefaultBits
	if v := r.URL.Query().Get("bits"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			bits = n
		}
	}
	priv, pub, err := keys.Generate(bits)
	if err != nil {
		h.Log.Error("generate keys", "error", err)
		http.Error(w, "key generation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, keyPairResponse{
		PrivateKeyDER: base64.StdEncoding.EncodeToString(priv),
		PublicKeyDER:  base64.StdEncoding.EncodeToString(pub),
	})
}

type embedResponse struct {
	ImageID       string `json:"image_id"`
	SchemaVersion int    `json:"schema_version"`
	WatermarkPNG  string `json:"watermark_png_b64"`
}

// Embed accepts a multipart upload with fields:
//
//	image        - the source image file
//	public_key   - base64 DER RSA public key
//	private_key  - base64 DER RSA private key
//	length       - number of watermark bits (optional, defaults to DefaultLength)
//	alpha        - modulation strength in (0,1] (optional, defaults to DefaultAlpha)
//
// It embeds the signature-derived watermark, registers the ground truth in
// the ledger under a new image ID, and returns the watermarked PNG.
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	privDER, err := decodeFormKey(r, "private_key")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pubDER, err := decodeFormKey(r, "public_key")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	length := h.DefaultLength
	if v := r.FormValue("length"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			length = n
		}
	}
	alpha := h.DefaultAlpha
	if v := r.FormValue("alpha"); v != "" {
		if a, err := strconv.ParseFloat(v, 64); err == nil {
			alpha = a
		}
	}

	srcPath, cleanup, err := saveUpload(r, "image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	img, err := imageio.Load(srcPath)
	if err != nil {
		http.Error(w, "unreadable image", http.StatusBadRequest)
		return
	}

	bits, err := generator.Generate(img, privDER, length)
	if err != nil {
		h.Log.Error("generate watermark", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	positions, err := position.Generate(pubDER, length)
	if err != nil {
		h.Log.Error("generate positions", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	watermarked, gt, err := strategy.Embed(img, bits, positions, alpha)
	if err != nil {
		h.Log.Error("embed watermark", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	imageID := uuid.NewString()
	outPath := filepath.Join(h.DataDir, "images", imageID+".png")
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		h.Log.Error("mkdir images dir", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := imageio.Save(watermarked, outPath, 0); err != nil {
		h.Log.Error("save watermarked image", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	if err := h.Ledger.Register(imageID, outPath, gt, position.SchemaVersion); err != nil {
		h.Log.Error("register ledger entry", "error", err)
		http.Error(w, "ledger error", http.StatusInternalServerError)
		return
	}

	pngBytes, err := os.ReadFile(outPath)
	if err != nil {
		h.Log.Error("read back watermarked image", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, embedResponse{
		ImageID:       imageID,
		SchemaVersion: position.SchemaVersion,
		WatermarkPNG:  base64.StdEncoding.EncodeToString(pngBytes),
	})
}

type verifyResponse struct {
	Similar bool    `json:"similar"`
	Score   float64 `json:"score"`
}

// Verify accepts a multipart upload with fields:
//
//	image     - the candidate image file
//	image_id  - the ID returned by a prior Embed call
//	threshold - optional percentage threshold (defaults to DefaultThresh)
//
// It extracts the candidate's watermark matrix and scores it against the
// ledger's registered ground truth.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	imageID := r.FormValue("image_id")
	if imageID == "" {
		http.Error(w, "image_id is required", http.StatusBadRequest)
		return
	}
	threshold := h.DefaultThresh
	if v := r.FormValue("threshold"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = t
		}
	}

	rec, err := h.Ledger.Retrieve(imageID)
	if err != nil {
		http.Error(w, "unknown image_id", http.StatusNotFound)
		return
	}

	candPath, cleanup, err := saveUpload(r, "image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	cand, err := imageio.Load(candPath)
	if err != nil {
		http.Error(w, "unreadable image", http.StatusBadRequest)
		return
	}

	extracted, err := strategy.ExtractMatrix(cand)
	if err != nil {
		h.Log.Error("extract watermark matrix", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	similar, score := strategy.IsSimilar(extracted, rec.GroundTruth, threshold)
	writeJSON(w, http.StatusOK, verifyResponse{Similar: similar, Score: score})
}

func decodeFormKey(r *http.Request, field string) ([]byte, error) {
	v := r.FormValue(field)
	if v == "" {
		return nil, errMissingField(field)
	}
	return base64.StdEncoding.DecodeString(v)
}

func errMissingField(field string) error {
	return &missingFieldError{field: field}
}

type missingFieldError struct{ field string }

func (e *missingFieldError) Error() string { return e.field + " is required" }

// saveUpload copies the named multipart file field to a temp file and
// returns its path plus a cleanup func to remove it.
func saveUpload(r *http.Request, field string) (string, func(), error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return "", nil, errMissingField(field)
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "watermark-upload-*")
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	tmp.Close()

	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
