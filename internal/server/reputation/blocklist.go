// Package reputation answers whether a domain is on the operator's
// blocklist.
package reputation

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const (
	StatusBlocked = "BLOCKED"
	StatusOK      = "OK"
)

// Blocklist is an immutable set of blocked domains, loaded once at startup.
type Blocklist struct {
	domains map[string]struct{}
	missing bool
}

// LoadFile reads one domain per line. Blank lines and lines starting with
// '#' are ignored. A missing file yields an empty blocklist that reports
// Missing.
func LoadFile(path string) (*Blocklist, error) {
	if path == "" {
		return &Blocklist{domains: map[string]struct{}{}}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Blocklist{domains: map[string]struct{}{}, missing: true}, nil
		}
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Blocklist, error) {
	b := &Blocklist{domains: map[string]struct{}{}}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.domains[Normalize(line)] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// Normalize lowercases a domain and drops a leading "www." and trailing dot.
func Normalize(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// Status returns StatusBlocked or StatusOK for domain.
func (b *Blocklist) Status(domain string) string {
	if _, ok := b.domains[Normalize(domain)]; ok {
		return StatusBlocked
	}
	return StatusOK
}

func (b *Blocklist) Len() int {
	return len(b.domains)
}

// Missing reports whether the configured file did not exist at load time.
func (b *Blocklist) Missing() bool {
	return b.missing
}
