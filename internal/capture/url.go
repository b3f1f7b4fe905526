package capture

import (
	"fmt"
	"net/url"
)

// SanitizeURL hides the password of a stream URL so it can be logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "rtsp://***"
	}
	if u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	safe := fmt.Sprintf("%s://%s:***@%s%s", u.Scheme, u.User.Username(), u.Host, u.EscapedPath())
	if u.RawQuery != "" {
		safe += "?" + u.RawQuery
	}
	return safe
}
