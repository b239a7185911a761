// Package parsers turns downloaded blocklist feeds into host entries.
package parsers

import (
	"bufio"
	"fmt"
	"io"
	"time"

	logpkg "github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/common/utils"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// PlainListIP is the address recorded for entries from plain domain lists.
const PlainListIP = "0.0.0.0"

// Parse dispatches a feed body to the parser for its format. An empty format means hosts.
func Parse(format domain.FeedFormat, r io.Reader, category domain.Category, logger logpkg.Logger, now time.Time) ([]domain.HostEntry, error) {
	switch format {
	case domain.FeedFormatHosts, "":
		return ParseHostsFile(r, category, logger, now)
	case domain.FeedFormatPlain:
		return ParsePlainList(r, category, PlainListIP, logger, now)
	default:
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}
}

// Lines longer than this are skipped whole.
const maxLineBytes = 64 * 1024

// extractor pulls the address and candidate names out of one data line.
// A non-empty skip names the reason the whole line is ignored.
type extractor func(line string) (ip string, names []string, skip string)

// feedReader is the loop both formats share: comment and blank handling,
// canonicalization, hostname validation and (ip, hostname) de-duplication.
type feedReader struct {
	format   string
	category domain.Category
	logger   logpkg.Logger
	now      time.Time
}

func (f feedReader) read(r io.Reader, extract extractor) ([]domain.HostEntry, error) {
	seen := make(map[domain.HostKey]struct{})
	out := make([]domain.HostEntry, 0, 256)
	f.logger.Debug(map[string]any{"category": f.category, "format": f.format}, "parse_start")

	br := bufio.NewReaderSize(r, maxLineBytes)
	for n := 1; ; n++ {
		text, tooLong, err := nextLine(br)
		if tooLong {
			f.logger.Debug(map[string]any{"line": n, "reason": "too_long"}, "parse_skip_line")
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			f.logger.Debug(map[string]any{"category": f.category, "error": err}, "parse_read_error")
			return nil, err
		}
		if tooLong {
			continue
		}

		line := stripLineBOM(text)
		if blank, comment := classifyLine(line); blank || comment {
			continue
		}

		ip, names, skip := extract(line)
		if skip != "" {
			f.logger.Debug(map[string]any{"line": n, "reason": skip}, "parse_skip_line")
			continue
		}
		for _, raw := range names {
			name := utils.CanonicalDNSName(raw)
			if !isValidHostname(name) {
				f.logger.Debug(map[string]any{"line": n, "raw": raw}, "parse_skip_invalid_hostname")
				continue
			}
			key := domain.HostKey{IP: ip, Hostname: name}
			if _, dup := seen[key]; dup {
				continue
			}
			entry, err := domain.NewHostEntry(ip, name, f.category, f.now)
			if err != nil {
				f.logger.Debug(map[string]any{"line": n, "name": name, "error": err}, "parse_skip_entry")
				continue
			}
			seen[key] = struct{}{}
			out = append(out, entry)
		}
	}

	f.logger.Debug(map[string]any{"category": f.category, "count": len(out)}, "parse_done")
	return out, nil
}

// nextLine returns the next line without its terminator. A line that does not
// fit the reader's buffer is consumed to its end and reported as tooLong.
// err is io.EOF once the input is exhausted.
func nextLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	chunk, more, err := br.ReadLine()
	if err != nil {
		return "", false, err
	}
	if !more {
		return string(chunk), false, nil
	}
	for more {
		if _, more, err = br.ReadLine(); err != nil {
			return "", true, err
		}
	}
	return "", true, nil
}
