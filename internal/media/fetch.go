package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

const (
	maxFetchBytes     = 20 << 20
	maxFetchRedirects = 5
)

// ErrBlockedAddress is returned when a URL resolves to a loopback, private,
// link-local or unspecified address.
var ErrBlockedAddress = errors.New("fetch: address not allowed")

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type FetcherOptions struct {
	Timeout time.Duration
	// Dial replaces the guarded dialer. Only tests that fetch from a local
	// httptest server should set it.
	Dial DialFunc
}

// Fetcher downloads source images supplied by URL. It only connects to
// public addresses, on the first request and on every redirect.
type Fetcher struct {
	httpClient *http.Client
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	dial := opts.Dial
	if dial == nil {
		dial = publicOnlyDial(&net.Dialer{Timeout: 10 * time.Second}, net.DefaultResolver)
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
	return &Fetcher{httpClient: &http.Client{
		Timeout:       opts.Timeout,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxFetchRedirects {
		return fmt.Errorf("fetch: stopped after %d redirects", maxFetchRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("fetch: redirect to unsupported scheme %q", req.URL.Scheme)
	}
	// hostnames are checked again when the transport dials
	if ip, err := netip.ParseAddr(req.URL.Hostname()); err == nil && blockedAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// publicOnlyDial resolves the host itself and dials the vetted IP, so a
// second DNS answer cannot swap in an internal address.
func publicOnlyDial(d *net.Dialer, resolver *net.Resolver) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("fetch: no addresses for %s", host)
		}
		for _, ip := range ips {
			if blockedAddr(ip) {
				return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
			}
		}
		return d.DialContext(ctx, network, net.JoinHostPort(ips[0].Unmap().String(), port))
	}
}

func blockedAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return !ip.IsValid() ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, "", fmt.Errorf("fetch: unsupported url %q", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedAddress) {
			return nil, "", ErrBlockedAddress
		}
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", vendorError("fetch", resp.StatusCode, "")
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxFetchBytes {
		return nil, "", errors.New("fetch: image too large")
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}
