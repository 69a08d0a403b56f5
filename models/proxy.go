package models

// Proxy is an optional SOCKS5 proxy for outbound traffic.
type Proxy struct {
	Addr     string `json:"addr"`
	Login    string `json:"login"`
	Password string `json:"password"`
}
