// Package redact маскирует персональные данные перед записью в лог.
package redact

import (
	"net/netip"
	"strings"
	"unicode/utf8"
)

// Email оставляет первые две руны локальной части и домен целиком.
func Email(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}

	if utf8.RuneCountInString(local) > 2 {
		_, n1 := utf8.DecodeRuneInString(local)
		_, n2 := utf8.DecodeRuneInString(local[n1:])
		local = local[:n1+n2] + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// IP обнуляет хвост адреса: /24 для IPv4 и /48 для IPv6.
// Невалидный адрес заменяется на "***".
func IP(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "***"
	}

	bits := 48
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 24
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "***"
	}

	return prefix.String()
}
