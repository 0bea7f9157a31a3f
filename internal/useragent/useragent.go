// Package useragent определяет класс ОС клиента по заголовку User-Agent.
package useragent

import "strings"

const (
	Windows = "Windows"
	MacOS   = "macOS"
	Linux   = "Linux"
	IOS     = "iOS"
	Android = "Android"
	// Other — ни один маркер не совпал.
	Other = "other"
	// Unknown — заголовок пуст.
	Unknown = "unknown"
)

type rule struct {
	os      string
	markers []string // в нижнем регистре
}

// Порядок важен: побеждает первое совпадение.
// Мобильные UA часто содержат маркеры десктопа ("like Mac OS X", "Linux; Android"),
// поэтому они классифицируются по первому подходящему правилу.
var rules = []rule{
	{os: Windows, markers: []string{"windows nt", "windows"}},
	{os: MacOS, markers: []string{"macintosh", "mac os x", "macos"}},
	{os: Linux, markers: []string{"linux", "ubuntu", "centos", "debian", "fedora"}},
	{os: IOS, markers: []string{"iphone", "ipad", "ipod"}},
	{os: Android, markers: []string{"android"}},
}

// DetectOS возвращает класс ОС. Регистр не важен.
func DetectOS(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Unknown
	}

	lower := strings.ToLower(ua)
	for _, r := range rules {
		for _, m := range r.markers {
			if strings.Contains(lower, m) {
				return r.os
			}
		}
	}

	return Other
}
