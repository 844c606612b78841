// Package proxy parses proxy lines and hands proxies out to account loops.
//
// Accepted line formats:
//
//	host:port
//	user:pass@host:port
//	host:port:user:pass
//	scheme://[user:pass@]host:port
//
// Every format is normalised to a URL string. Bare lines default to http.
package proxy
