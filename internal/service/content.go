package service

import (
	"crypto/md5"
	"encoding/hex"
	"html"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/pribylovaa/page-comments/internal/models"
)

// spamKeywords — при двух и более разных совпадениях текст считается спамом.
var spamKeywords = []string{
	"广告", "推广", "spam", "色情", "赌博", "借贷", "贷款",
	"微信", "qq", "加我", "联系我", "http://", "https://",
	"点击", "优惠", "打折", "免费", "赚钱",
}

const usernameForbidden = `<>"'/\`

// normalizeText обрезает пробелы и приводит текст к NFC.
func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func runeLenBetween(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}

// isSpam ищет ключевые слова без учёта регистра.
func isSpam(content string) bool {
	lower := strings.ToLower(content)

	hits := 0
	for _, kw := range spamKeywords {
		if strings.Contains(lower, kw) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}

	return false
}

// sanitizeContent экранирует HTML перед записью.
func sanitizeContent(content string) string {
	return html.EscapeString(content)
}

// EmailHash — hex(md5(lower(trim(email)))). Единственный отпечаток личности, видимый снаружи.
func EmailHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// validatePage проверяет ключ страницы.
func (s *Service) validatePage(page string) (string, string) {
	page = strings.TrimSpace(page)
	if page == "" {
		return "", "empty page"
	}

	if utf8.RuneCountInString(page) > s.cfg.Content.MaxPage {
		return "", "page too long"
	}

	return page, ""
}

// validateContent нормализует текст и проверяет длину; для публичной записи — ещё и спам.
func (s *Service) validateContent(content string, checkSpam bool) (string, string) {
	content = normalizeText(content)
	if !runeLenBetween(content, s.cfg.Content.MinContent, s.cfg.Content.MaxContent) {
		return "", "content length out of bounds"
	}

	if checkSpam && isSpam(content) {
		return "", "content looks like spam"
	}

	return content, ""
}

// validateCreate нормализует вход и возвращает причину отказа (пустая строка — вход валиден).
func (s *Service) validateCreate(in *CreateCommentInput) string {
	var reason string

	if in.Page, reason = s.validatePage(in.Page); reason != "" {
		return reason
	}

	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || utf8.RuneCountInString(in.Email) > s.cfg.Content.MaxEmail {
		return "email length out of bounds"
	}
	if err := s.validate.Var(in.Email, "email"); err != nil {
		return "malformed email"
	}

	in.Username = normalizeText(in.Username)
	if !runeLenBetween(in.Username, s.cfg.Content.MinUsername, s.cfg.Content.MaxUsername) {
		return "username length out of bounds"
	}
	if strings.ContainsAny(in.Username, usernameForbidden) {
		return "username contains forbidden characters"
	}

	if in.Content, reason = s.validateContent(in.Content, true); reason != "" {
		return reason
	}

	if in.ParentID != nil && *in.ParentID <= 0 {
		return "invalid parent_id"
	}

	return ""
}

// public убирает серверные поля (email, ip, user agent) из выдачи.
func public(c models.Comment) models.Comment {
	c.Email = ""
	c.IPAddress = ""
	c.UserAgent = ""
	return c
}
