package storage

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeCursor кодирует пару (created_at, id) последней отданной строки в непрозрачный токен.
func EncodeCursor(t time.Time, id int64) string {
	raw := strconv.FormatInt(t.UTC().UnixNano(), 10) + "|" + strconv.FormatInt(id, 10)

	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor декодирует токен обратно в пару ключей.
func DecodeCursor(token string) (time.Time, int64, error) {
	res, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return time.Time{}, 0, err
	}

	left, right, ok := strings.Cut(string(res), "|")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("bad parts")
	}

	nanos, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return time.Time{}, 0, err
	}

	id, err := strconv.ParseInt(right, 10, 64)
	if err != nil || id <= 0 {
		return time.Time{}, 0, fmt.Errorf("bad id %q", right)
	}

	return time.Unix(0, nanos).UTC(), id, nil
}

// LimitOrDefault приводит запрошенный размер страницы к [1, max], 0 и меньше — def.
func LimitOrDefault(def, max, pageSize int32) int32 {
	lim := pageSize
	if lim <= 0 {
		lim = def
	}

	if lim > max {
		lim = max
	}

	return lim
}
