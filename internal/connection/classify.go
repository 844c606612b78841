package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

// Error kinds recorded in the breaker.
const (
	KindTimeout   = "timeout"
	KindTLS       = "tls"
	KindReset     = "reset"
	KindProxyAuth = "proxy_auth"
	KindHandshake = "handshake"
	KindGeneric   = "generic"
)

// ProxyAuthRequired is the text proxies answer CONNECT with when credentials
// are missing or rejected.
const ProxyAuthRequired = "Proxy Authentication Required"

// commonErrors are expected while farming at scale and logged quietly.
var commonErrors = []string{
	"Expectation Failed",
	"Cannot connect to host",
	"Invalid response status",
	"Connection timeout to host",
	"Service Unavailable",
	"Internal Server Error",
}

// Classify maps a transport error to a breaker kind.
func Classify(err error) string {
	if err == nil {
		return KindGeneric
	}
	if IsProxyAuth(err) {
		return KindProxyAuth
	}

	var (
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	if errors.As(err, &recordErr) || errors.As(err, &verifyErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) || errors.As(err, &invalidCert) {
		return KindTLS
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return KindTimeout
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return KindReset
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return KindHandshake
	}

	return KindGeneric
}

// IsProxyAuth reports whether err is a proxy authentication rejection.
func IsProxyAuth(err error) bool {
	return err != nil && strings.Contains(err.Error(), ProxyAuthRequired)
}

// IsCommon reports whether err matches a known, expected failure.
func IsCommon(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, common := range commonErrors {
		if strings.Contains(msg, common) {
			return true
		}
	}
	return false
}
