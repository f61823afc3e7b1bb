// Package security はリンクURLの検証と表示用テキストの無害化を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard はリンクプレビューと上流APIへの接続に使うURLの検証を担う。
type URLGuard interface {
	// CheckLink はカード取得に送ってよいURLかを静的に検証する。DNS解決は行わない。
	CheckLink(rawURL string) error
	// NewUpstreamClient はプライベートアドレスへの接続を拒否するHTTPクライアントを生成する。
	NewUpstreamClient(timeout time.Duration) *http.Client
}

var linkSchemes = []string{"http", "https"}

// blockedPrefixes はリンクとして受け付けないアドレス範囲。
var blockedPrefixes = mustPrefixes(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

type guard struct {
	blockedHosts map[string]struct{}
}

// NewURLGuard はURLGuardの新しいインスタンスを生成する。
func NewURLGuard() URLGuard {
	return &guard{
		blockedHosts: map[string]struct{}{"localhost": {}},
	}
}

// CheckLink はスキーム(http/https)、ホストの有無、ブロック対象アドレスを検証する。
func (g *guard) CheckLink(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", u.Scheme, linkSchemes)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if _, ok := g.blockedHosts[host]; ok {
		return fmt.Errorf("blocked host: %s", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
	}
	return nil
}

// NewUpstreamClient はsafeurlでラップしたHTTPクライアントを返す。
// 接続先IPはDNS解決後にDialerで検証される。
func (g *guard) NewUpstreamClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(linkSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(cfg).Client
}
