package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/page-comments/internal/models"
)

func TestIsSpam(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"обычный комментарий без рекламы", false},
		{"один раз spam, не повод", false},
		{"SPAM и ещё https://example.com", true},
		{"пишите в QQ или 微信", true},
		{"广告广告广告", false},
		{"点击这里 赚钱", true},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			require.Equal(t, tt.want, isSpam(tt.content))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	// e + combining acute -> é (NFC)
	require.Equal(t, "caf\u00e9", normalizeText("  cafe\u0301 \n"))
	require.Equal(t, "", normalizeText(" \t "))
}

func TestRuneLenBetween(t *testing.T) {
	require.True(t, runeLenBetween("привет", 6, 6))
	require.False(t, runeLenBetween("привет", 7, 10))
	require.False(t, runeLenBetween("привет", 1, 5))
}

func TestSanitizeContent(t *testing.T) {
	require.Equal(t, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; ok",
		sanitizeContent(`<script>alert("x")</script> & ok`))
}

func TestEmailHash(t *testing.T) {
	require.Equal(t, "55502f40dc8b7c769880b10874abc9d0", EmailHash("test@example.com"))
	require.Equal(t, EmailHash("test@example.com"), EmailHash("  Test@Example.COM "))
	require.Len(t, EmailHash("x@y.z"), 32)
}

func TestPublic(t *testing.T) {
	c := models.Comment{
		ID: 1, Email: "a@example.com", EmailHash: "h",
		IPAddress: "1.2.3.4", UserAgent: "ua", SystemType: "Linux", Location: "中国",
	}

	got := public(c)
	require.Empty(t, got.Email)
	require.Empty(t, got.IPAddress)
	require.Empty(t, got.UserAgent)
	require.Equal(t, "h", got.EmailHash)
	require.Equal(t, "Linux", got.SystemType)
	require.Equal(t, "中国", got.Location)

	// Исходник не меняется.
	require.Equal(t, "a@example.com", c.Email)
}
