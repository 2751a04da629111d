package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/jroosing/hydraproxy/internal/config"
	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream:\n  server: 9.9.9.9\napi:\n  api_key: topsecret\n"), 0o600))

	out, err := execute(t, "config", "dump", "-c", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "topsecret")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "9.9.9.9:53", cfg.Upstream.Server)
	assert.Equal(t, 1053, cfg.Server.Port)
}

func TestConfigDump_MissingFile(t *testing.T) {
	_, err := execute(t, "config", "dump", "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv(config.ConfigEnvVar, "")
	cfg, err := loadWithOverrides(&startFlags{
		host:     "127.0.0.1",
		port:     5353,
		upstream: "1.1.1.1",
		jsonLogs: true,
		debug:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5353, cfg.Server.Port)
	assert.Equal(t, "1.1.1.1:53", cfg.Upstream.Server)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "json", cfg.Logging.StructuredFormat)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)

	_, err = loadWithOverrides(&startFlags{upstream: "dns.google"})
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestQuery(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	srv := &mdns.Server{
		PacketConn: pc,
		Handler: mdns.HandlerFunc(func(w mdns.ResponseWriter, r *mdns.Msg) {
			m := new(mdns.Msg)
			m.SetReply(r)
			for _, s := range []string{" 60 IN MX 20 mx2.example.com.", " 60 IN MX 10 mx1.example.com."} {
				rr, _ := mdns.NewRR(r.Question[0].Name + s)
				m.Answer = append(m.Answer, rr)
			}
			_ = w.WriteMsg(m)
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	defer func() { _ = srv.Shutdown() }()

	out, err := execute(t, "query", "--server", pc.LocalAddr().String(), "--name", "example.com", "--type", "mx")
	require.NoError(t, err)
	assert.Contains(t, out, "rcode=NOERROR answers=2")
	assert.Contains(t, out, "example.com. 60 IN MX 10 mx1.example.com.")
	assert.Less(t, bytes.Index([]byte(out), []byte("MX 10")), bytes.Index([]byte(out), []byte("MX 20")), "answers are sorted")
}

func TestQuery_BadInput(t *testing.T) {
	_, err := execute(t, "query", "--type", "BOGUS")
	require.ErrorContains(t, err, "unknown query type")

	_, err = execute(t, "query", "--server", "resolver.local")
	require.Error(t, err)

	_, err = execute(t, "query", "--name", " ")
	require.ErrorContains(t, err, "name required")
}
