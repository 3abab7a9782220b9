// internal/network/httpclient_test.go
package network

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewDefaultClientConfig(t *testing.T) {
	cfg := NewDefaultClientConfig()
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.True(t, cfg.ForceHTTP2)
	assert.False(t, cfg.IgnoreTLSErrors)
}

func TestNewHTTPTransport(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tr := NewHTTPTransport(nil)
		require.NotNil(t, tr.TLSClientConfig)
		assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
		assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
		assert.NotNil(t, tr.Proxy)
		assert.Contains(t, tr.TLSClientConfig.NextProtos, "h2")
	})

	t.Run("http1 only", func(t *testing.T) {
		cfg := NewDefaultClientConfig()
		cfg.ForceHTTP2 = false
		cfg.IgnoreTLSErrors = true
		cfg.Logger = zaptest.NewLogger(t)
		tr := NewHTTPTransport(cfg)
		assert.Equal(t, []string{"http/1.1"}, tr.TLSClientConfig.NextProtos)
		assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	})
}

func TestNewClient_TLSServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	strict := NewClient(nil)
	_, err := strict.Get(srv.URL)
	assert.Error(t, err, "self-signed certificate must be rejected by default")

	cfg := NewDefaultClientConfig()
	cfg.IgnoreTLSErrors = true
	cfg.RequestTimeout = 5 * time.Second
	client := NewClient(cfg)
	assert.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
