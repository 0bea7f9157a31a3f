package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/pribylovaa/page-comments/internal/pkg/log"
	"github.com/pribylovaa/page-comments/internal/pkg/redact"
)

// proxyHeaders — заголовки с адресом клиента, в порядке доверия.
var proxyHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"X-Client-IP",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
}

// ClientIP определяет адрес клиента и кладёт его в контекст, а маскированную
// версию добавляет в request-scoped логгер.
// При trustProxy берётся первый публичный адрес из proxyHeaders; запасной вариант — RemoteAddr.
func ClientIP(trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ""
			if trustProxy {
				ip = fromHeaders(r.Header)
			}
			if ip == "" {
				ip = remoteIP(r.RemoteAddr)
			}

			ctx := context.WithValue(r.Context(), ctxClientIP, ip)
			ctx = log.With(ctx, "client_ip", redact.IP(ip))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFrom возвращает адрес клиента из контекста или пустую строку.
func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(ctxClientIP).(string)
	return ip
}

func fromHeaders(h http.Header) string {
	for _, name := range proxyHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}

		for _, part := range strings.Split(v, ",") {
			if ip, ok := publicIP(candidate(part)); ok {
				return ip
			}
		}
	}

	return ""
}

// candidate достаёт адрес из элемента заголовка: "1.2.3.4", "1.2.3.4:80", "for=1.2.3.4", `for="[::1]:80"`.
func candidate(part string) string {
	part = strings.TrimSpace(part)

	for _, kv := range strings.Split(part, ";") {
		kv = strings.TrimSpace(kv)
		if k, v, ok := strings.Cut(kv, "="); ok {
			if strings.EqualFold(strings.TrimSpace(k), "for") {
				part = v
				break
			}
		}
	}

	part = strings.Trim(strings.TrimSpace(part), `"`)
	if host, _, err := net.SplitHostPort(part); err == nil {
		return host
	}

	return strings.Trim(part, "[]")
}

func publicIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}

	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return "", false
	}

	return addr.String(), true
}

func remoteIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return strings.TrimSpace(remote)
	}
	return host
}
