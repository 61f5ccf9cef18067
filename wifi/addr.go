package wifi

import "errors"

// SplitHostPort splits "host:port". The last colon separates the port so
// bare IPv6 hosts keep their colons.
func SplitHostPort(addr string) (host string, port uint16, err error) {
	colon := -1
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			colon = i
			break
		}
	}
	if colon == -1 {
		return "", 0, errors.New("missing port in address " + addr)
	}
	host = addr[:colon]
	if host == "" {
		return "", 0, errors.New("empty host in address " + addr)
	}
	port, ok := parsePort(addr[colon+1:])
	if !ok {
		return "", 0, errors.New("bad port in address " + addr)
	}
	return host, port, nil
}

func parsePort(s string) (uint16, bool) {
	if s == "" || len(s) > 5 {
		return 0, false
	}
	var port uint32
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		port = port*10 + uint32(s[i]-'0')
	}
	if port == 0 || port > 0xFFFF {
		return 0, false
	}
	return uint16(port), true
}
