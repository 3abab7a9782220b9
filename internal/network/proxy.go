// internal/network/proxy.go
package network

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
	xproxy "golang.org/x/net/proxy"

	"github.com/xkilldash9x/renewbot/internal/config"
)

const defaultListenAddr = "127.0.0.1:0"

// Forwarder is a local, unauthenticated HTTP proxy that relays the browser's
// traffic to an upstream proxy which may require credentials. Chromium takes
// a proxy server from its command line but cannot log in to it from there.
type Forwarder struct {
	proxy    *goproxy.ProxyHttpServer
	upstream *url.URL
	listen   string
	logger   *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewForwarder builds a forwarder for cfg.URL. Supported upstream schemes are
// http, https, socks5 and socks5h.
func NewForwarder(cfg config.ProxyConfig, dialTimeout time.Duration, logger *zap.Logger) (*Forwarder, error) {
	upstream, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream proxy url: %w", err)
	}
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	log := logger.Named("proxy_forwarder")

	p := goproxy.NewProxyHttpServer()
	p.Verbose = false
	p.Logger = zap.NewStdLog(log)

	switch upstream.Scheme {
	case "http", "https":
		p.Tr = &http.Transport{
			Proxy:               http.ProxyURL(upstream),
			DialContext:         (&net.Dialer{Timeout: dialTimeout}).DialContext,
			TLSHandshakeTimeout: dialTimeout,
		}
		p.ConnectDial = p.NewConnectDialToProxyWithHandler(upstreamWithoutAuth(upstream), func(req *http.Request) {
			if auth := proxyAuthorization(upstream); auth != "" {
				req.Header.Set("Proxy-Authorization", auth)
			}
		})
	case "socks5", "socks5h":
		dialer, err := xproxy.FromURL(upstream, &net.Dialer{Timeout: dialTimeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create socks dialer: %w", err)
		}
		ctxDialer, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks dialer does not support contexts")
		}
		p.Tr = &http.Transport{DialContext: ctxDialer.DialContext, TLSHandshakeTimeout: dialTimeout}
		p.ConnectDial = dialer.Dial
	default:
		return nil, fmt.Errorf("unsupported upstream proxy scheme %q", upstream.Scheme)
	}

	p.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		log.Debug("Tunneling through upstream.", zap.String("host", host))
		return goproxy.OkConnect, host
	}))

	listen := cfg.Listen
	if listen == "" {
		listen = defaultListenAddr
	}
	return &Forwarder{
		proxy:    p,
		upstream: upstream,
		listen:   listen,
		logger:   log,
	}, nil
}

func upstreamWithoutAuth(u *url.URL) string {
	clean := *u
	clean.User = nil
	return clean.String()
}

// proxyAuthorization builds a Basic Proxy-Authorization value from the URL's
// user info, or "" when there is none.
func proxyAuthorization(u *url.URL) string {
	if u.User == nil {
		return ""
	}
	password, _ := u.User.Password()
	creds := u.User.Username() + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// Listen binds the local listener and returns the proxy URL to hand to the
// browser. It must be called before Serve.
func (f *Forwarder) Listen() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener != nil {
		return "", errors.New("forwarder already listening")
	}
	ln, err := net.Listen("tcp", f.listen)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", f.listen, err)
	}
	f.listener = ln
	f.server = &http.Server{
		Handler:     f.proxy,
		IdleTimeout: 120 * time.Second,
		ErrorLog:    zap.NewStdLog(f.logger.Named("http_server")),
	}
	addr := "http://" + ln.Addr().String()
	f.logger.Info("Proxy forwarder listening.", zap.String("address", addr),
		zap.String("upstream", upstreamWithoutAuth(f.upstream)))
	return addr, nil
}

// Serve relays connections until ctx is cancelled, then shuts down gracefully.
func (f *Forwarder) Serve(ctx context.Context) error {
	f.mu.Lock()
	server, ln := f.server, f.listener
	f.mu.Unlock()
	if server == nil {
		return errors.New("forwarder is not listening")
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		err = <-shutdownErr
	}
	if err != nil {
		f.logger.Error("Proxy forwarder stopped with an error.", zap.Error(err))
		return fmt.Errorf("proxy forwarder failed: %w", err)
	}
	f.logger.Info("Proxy forwarder stopped.")
	return nil
}
