package main

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
)

const upstreamAnswer = "93.184.216.34"

// startUpstream runs a UDP resolver that answers every A question with upstreamAnswer.
func startUpstream(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if r.Question[0].Qtype == dns.TypeA {
			rr, _ := dns.NewRR(fmt.Sprintf("%s 60 IN A %s", r.Question[0].Name, upstreamAnswer))
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

// startFeed serves body as a hosts file at /hosts.
func startFeed(t *testing.T, body string) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hosts" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts.URL + "/hosts"
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// setTestEnv points the configuration at local fakes. Only the
// ADWARE_MALWARE_LINK feed stays enabled.
func setTestEnv(t *testing.T, feedURL, upstreamAddr string) {
	t.Helper()
	t.Setenv("SINKHOLE_ENV", "dev")
	t.Setenv("SINKHOLE_LOG_LEVEL", "error")
	t.Setenv("SINKHOLE_SERVER_HOST", "127.0.0.1")
	t.Setenv("SINKHOLE_SERVER_PORT", "0")
	t.Setenv("SINKHOLE_SERVER_FALLBACK_PORT", "0")
	t.Setenv("SINKHOLE_UPSTREAM_SERVERS", upstreamAddr)
	t.Setenv("SINKHOLE_UPSTREAM_TIMEOUT", "1s")
	t.Setenv("SINKHOLE_BLOCKLIST_PATH", filepath.Join(t.TempDir(), "data", "blocklist.db"))
	t.Setenv("SINKHOLE_INGEST_INTERVAL", "0")
	t.Setenv("SINKHOLE_ADMIN_ADDR", fmt.Sprintf("127.0.0.1:%d", freePort(t)))
	t.Setenv("SINKHOLE_FEEDS_ADWARE_MALWARE_LINK_URL", feedURL)
	for _, name := range []string{"FAKE_NEWS", "GAMBLING", "PORN", "SOCIAL"} {
		t.Setenv("SINKHOLE_FEEDS_"+name+"_ENABLED", "false")
	}
}

// keepLogger restores the global logger replaced by the commands.
func keepLogger(t *testing.T) {
	t.Helper()
	orig := log.GetLogger()
	t.Cleanup(func() { log.SetLogger(orig) })
}
