package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/page-comments/internal/http/middleware"
	"github.com/pribylovaa/page-comments/internal/metrics"
	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/ratelimit"
	"github.com/pribylovaa/page-comments/internal/service"
)

// stubService отвечает пустыми успешными результатами и запоминает IP чтения.
type stubService struct {
	deleted []int64
	readIP  string
}

func (s *stubService) CreateComment(context.Context, service.CreateCommentInput) (*service.CreateResult, error) {
	return &service.CreateResult{Comment: &models.Comment{ID: 1}}, nil
}

func (s *stubService) ListComments(context.Context, service.ListCommentsInput) (*models.ThreadPage, error) {
	return &models.ThreadPage{}, nil
}

func (s *stubService) ListReplies(context.Context, service.ListRepliesInput) (*models.Page, error) {
	return &models.Page{}, nil
}

func (s *stubService) CommentByID(_ context.Context, id int64) (*models.Comment, error) {
	return &models.Comment{ID: id}, nil
}

func (s *stubService) UpdateComment(_ context.Context, in service.UpdateCommentInput) (*models.Comment, error) {
	return &models.Comment{ID: in.ID}, nil
}

func (s *stubService) DeleteComment(_ context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubService) PageStats(_ context.Context, page string) (*models.PageStats, error) {
	return &models.PageStats{Page: page}, nil
}

func (s *stubService) CheckRead(_ context.Context, ip string) (ratelimit.Decision, error) {
	s.readIP = ip
	return ratelimit.Decision{Allowed: true}, nil
}

func serve(h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.1.2.3:5000"
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_BasePath(t *testing.T) {
	h := NewRouter(&stubService{}, Options{BasePath: "/api", Timeout: time.Second})

	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/comments?page=p", nil).Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/comments/1/replies", nil).Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/stats?page=p", nil).Code)
	require.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/comments?page=p", nil).Code)

	rr := serve(h, http.MethodGet, "/api/comments/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

// Без секрета админских маршрутов нет.
func TestRouter_AdminDisabled(t *testing.T) {
	svc := &stubService{}
	h := NewRouter(svc, Options{})

	rr := serve(h, http.MethodDelete, "/comments/1", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Empty(t, svc.deleted)
}

func TestRouter_AdminEnabled(t *testing.T) {
	const secret = "s3cret"
	svc := &stubService{}
	h := NewRouter(svc, Options{AdminSecret: secret, AdminIssuer: "page-comments"})

	require.Equal(t, http.StatusUnauthorized, serve(h, http.MethodDelete, "/comments/1", nil).Code)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.AdminClaims{
		Role: middleware.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "page-comments",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	rr := serve(h, http.MethodDelete, "/comments/1", map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, []int64{1}, svc.deleted)
}

func TestRouter_TrustProxyHeaders(t *testing.T) {
	hdr := map[string]string{"X-Forwarded-For": "203.0.113.50"}

	svc := &stubService{}
	serve(NewRouter(svc, Options{TrustProxyHeaders: true}), http.MethodGet, "/comments/1", hdr)
	require.Equal(t, "203.0.113.50", svc.readIP)

	svc = &stubService{}
	serve(NewRouter(svc, Options{}), http.MethodGet, "/comments/1", hdr)
	require.Equal(t, "10.1.2.3", svc.readIP)
}

func TestRouter_CORS(t *testing.T) {
	h := NewRouter(&stubService{}, Options{CORSOrigins: []string{"https://blog.example"}})

	rr := serve(h, http.MethodOptions, "/comments", map[string]string{
		"Origin":                        "https://blog.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	require.Equal(t, "https://blog.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(h, http.MethodGet, "/comments/1", map[string]string{"Origin": "https://evil.example"})
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewRouter(&stubService{}, Options{BasePath: "/api", Metrics: metrics.New(reg)})

	serve(h, http.MethodGet, "/api/comments/1", nil)
	serve(h, http.MethodGet, "/api/comments/2", nil)

	n, err := testutil.GatherAndCount(reg, "page_comments_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
