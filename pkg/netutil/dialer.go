package netutil

import (
	"fmt"
	"net/http"
	"time"

	"xrepost/models"

	"golang.org/x/net/proxy"
)

// Dialer returns a SOCKS5 dialer for p, or a direct dialer when p is nil or
// has no address.
func Dialer(p *models.Proxy) (proxy.ContextDialer, error) {
	if p == nil || p.Addr == "" {
		return proxy.Direct, nil
	}
	var auth *proxy.Auth
	if p.Login != "" {
		auth = &proxy.Auth{User: p.Login, Password: p.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", p.Addr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer %s: %w", p.Addr, err)
	}
	dc, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer %s does not support contexts", p.Addr)
	}
	return dc, nil
}

// NewHTTPClient builds a client with a bounded timeout whose connections go
// through p when set.
func NewHTTPClient(p *models.Proxy, timeout time.Duration) (*http.Client, error) {
	dc, err := Dialer(p)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dc.DialContext
	if p != nil && p.Addr != "" {
		transport.Proxy = nil
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
