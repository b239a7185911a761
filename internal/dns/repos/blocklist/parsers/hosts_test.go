package parsers

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

func hostnames(entries []domain.HostEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Hostname)
	}
	return out
}

func TestParseHostsFile_Basic(t *testing.T) {
	input := `
# Title: StevenBlack/hosts
127.0.0.1 localhost
::1 localhost ip6-localhost ip6-loopback
0.0.0.0 0.0.0.0
0.0.0.0 example.com example.org # inline comment
# wildcard-like entries should be ignored
0.0.0.0 *.bad.example.com .also.bad.example.com
192.168.1.1 sub.Example.com.
not-an-ip skipped.example
1.2.3.4 . .
`
	now := time.Unix(1723551000, 0)
	got, err := ParseHostsFile(bytes.NewBufferString(input), domain.CategoryAdwareMalware, log.NewNoopLogger(), now)
	require.NoError(t, err)

	// localhost tokens are single-label, wildcard/leading-dot and IP literals are skipped
	assert.Equal(t, []string{"example.com", "example.org", "sub.example.com"}, hostnames(got))
	assert.Equal(t, "0.0.0.0", got[0].IP)
	assert.Equal(t, "192.168.1.1", got[2].IP)
	for i, e := range got {
		assert.Equal(t, domain.CategoryAdwareMalware, e.Category, "entry %d", i)
		assert.True(t, e.AddedAt.Equal(now), "entry %d", i)
	}
}

func TestParseHostsFile_TrackerScenario(t *testing.T) {
	got, err := ParseHostsFile(strings.NewReader("0.0.0.0 tracker1.example tracker2.example\n"), domain.CategoryPorn, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, domain.CategoryPorn, e.Category)
		assert.Equal(t, "0.0.0.0", e.IP)
	}
	assert.Equal(t, []string{"tracker1.example", "tracker2.example"}, hostnames(got))
}

func TestParseHostsFile_InlineCommentTokenEndsLine(t *testing.T) {
	input := "0.0.0.0 a.example #b.example c.example\n0.0.0.0 d.example # e.example\n"
	got, err := ParseHostsFile(strings.NewReader(input), domain.CategorySocial, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "d.example"}, hostnames(got))
}

func TestParseHostsFile_Duplicates(t *testing.T) {
	// Duplicates across lines and same line collapse per (ip, hostname)
	input := "0.0.0.0 dup.example.com dup.example.com\n0.0.0.0 DUP.example.com\n127.0.0.1 dup.example.com\n"
	got, err := ParseHostsFile(bytes.NewBufferString(input), domain.CategoryGambling, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 2, "same hostname under a different ip is a distinct pair")
	assert.Equal(t, domain.HostKey{IP: "0.0.0.0", Hostname: "dup.example.com"}, got[0].Key())
	assert.Equal(t, domain.HostKey{IP: "127.0.0.1", Hostname: "dup.example.com"}, got[1].Key())

}

func TestParseHostsFile_OverlongLineIsSkipped(t *testing.T) {
	input := "0.0.0.0 good1.example\n# " + strings.Repeat("x", 70000) + "\n0.0.0.0 good2.example\n"
	got, err := ParseHostsFile(strings.NewReader(input), domain.CategoryGambling, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"good1.example", "good2.example"}, hostnames(got))

	// Same at end of input with no trailing newline.
	got, err = ParseHostsFile(strings.NewReader("0.0.0.0 a.example\n0.0.0.0 "+strings.Repeat("b", 70000)), domain.CategoryGambling, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example"}, hostnames(got))
}

func TestParseHostsFile_ReadErrorFailsFeed(t *testing.T) {
	r := io.MultiReader(strings.NewReader("0.0.0.0 a.example\n"), iotest.ErrReader(errors.New("connection reset")))
	_, err := ParseHostsFile(r, domain.CategoryGambling, log.NewNoopLogger(), time.Now())
	assert.ErrorContains(t, err, "connection reset")
}

func TestParseHostsFile_CRLF(t *testing.T) {
	got, err := ParseHostsFile(strings.NewReader("0.0.0.0 a.example\r\n0.0.0.0 b.example\r\n"), domain.CategoryPorn, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example"}, hostnames(got))
}

func TestParseHostsFile_NoHostnamesAndBOM(t *testing.T) {
	input := "\uFEFF0.0.0.0 first.example\n192.0.2.1\n0.0.0.0 example.com\n"
	got, err := ParseHostsFile(bytes.NewBufferString(input), domain.CategoryFakeNews, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"first.example", "example.com"}, hostnames(got))
}

func TestParseHostsFile_IPv6Normalized(t *testing.T) {
	got, err := ParseHostsFile(strings.NewReader("0:0:0:0:0:0:0:0 v6.example\n"), domain.CategoryPorn, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "::", got[0].IP)
}

func TestParseHostsFile_EmptyInput(t *testing.T) {
	got, err := ParseHostsFile(strings.NewReader("# only comments\n\n"), domain.CategoryPorn, log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, got)
}
