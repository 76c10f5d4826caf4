package export

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/sentinel-ops/sentinel/internal/assets"
	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
)

const (
	rateLimit  = 10
	rateWindow = time.Minute
)

// Handler serves export downloads.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler constructs an export handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers GET /{kind}.{format}. Downloads are rate limited per
// user.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "Too many export requests, try again shortly.")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(rbac.PermExportData))
		gr.Use(limiter)
		gr.Get("/{file}", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		if user := strings.TrimSpace(p.Username); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func parseFile(name string) (Kind, Format, bool) {
	base, ext, ok := strings.Cut(name, ".")
	if !ok {
		return "", "", false
	}
	kind, format := Kind(base), Format(strings.ToLower(ext))
	if !kind.IsValid() || (format != FormatCSV && format != FormatXLSX) {
		return "", "", false
	}
	return kind, format, true
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	kind, format, ok := parseFile(chi.URLParam(r, "file"))
	if !ok {
		httpx.RespondError(w, ErrUnknownKind)
		return
	}
	q, err := assets.ListQueryFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table, err := h.service.Build(r.Context(), p, kind, q)
	if err != nil {
		if !errors.Is(err, httpx.ErrForbidden) && !errors.Is(err, httpx.ErrNotFound) {
			h.logger.Error("build export", slog.String("kind", string(kind)), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	var buf bytes.Buffer
	if format == FormatXLSX {
		err = WriteXLSX(&buf, table)
	} else {
		err = WriteCSV(&buf, table)
	}
	if err != nil {
		h.logger.Error("render export", slog.String("format", string(format)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", kind, h.now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("stream export", slog.Any("error", err))
	}
	h.logger.Info("export served", slog.String("kind", string(kind)), slog.String("format", string(format)),
		slog.String("user", p.Username), slog.Int("rows", len(table.Rows)))
}
