package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidProxy is returned for lines that match none of the accepted formats.
var ErrInvalidProxy = errors.New("invalid proxy")

var supportedSchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// Parse normalises a single proxy line into a URL string.
func Parse(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%w: empty line", ErrInvalidProxy)
	}

	if !strings.Contains(line, "://") {
		converted, err := fromBare(line)
		if err != nil {
			return "", err
		}
		line = converted
	}

	u, err := url.Parse(line)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	if !supportedSchemes[u.Scheme] {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	if err := checkHostPort(u.Host); err != nil {
		return "", err
	}
	return u.String(), nil
}

// ParseAll normalises every line, failing on the first bad one.
func ParseAll(lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		p, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// fromBare rewrites the scheme-less formats into http URLs.
func fromBare(line string) (string, error) {
	if at := strings.LastIndex(line, "@"); at >= 0 {
		creds, hostPort := line[:at], line[at+1:]
		user, pass, ok := strings.Cut(creds, ":")
		if !ok {
			return "", fmt.Errorf("%w: credentials must be user:pass", ErrInvalidProxy)
		}
		return "http://" + userinfo(user, pass) + "@" + hostPort, nil
	}

	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		return "http://" + line, nil
	case 4:
		return "http://" + userinfo(parts[2], parts[3]) + "@" + parts[0] + ":" + parts[1], nil
	default:
		return "", fmt.Errorf("%w: unrecognised format", ErrInvalidProxy)
	}
}

func userinfo(user, pass string) string {
	return url.UserPassword(user, pass).String()
}

func checkHostPort(hostPort string) error {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidProxy)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: bad port %q", ErrInvalidProxy, port)
	}
	return nil
}

// Redact strips credentials from a proxy URL for logging.
func Redact(proxy string) string {
	u, err := url.Parse(proxy)
	if err != nil || u.User == nil {
		return proxy
	}
	u.User = url.User("xxx")
	return u.String()
}
