package dataset

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
)

// DefaultExtensions are the suffixes tester logs are written with. The empty
// string admits files without an extension.
var DefaultExtensions = []string{".txt", ".log", ".dat", ""}

const sniffLines = 200

// DiscoverOptions control Discover.
type DiscoverOptions struct {
	Extensions []string
	// Sniff opens each candidate and keeps it only if a No.U header appears
	// near the top.
	Sniff bool
}

// Discover walks root and returns candidate log files sorted by path. A root
// that names a file is returned as is.
func Discover(root string, opt DiscoverOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	exts := opt.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allow := map[string]bool{}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allow[e] = true
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if !allow[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if opt.Sniff {
			ok, err := LooksLikeLog(path)
			if err != nil || !ok {
				return nil
			}
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// LooksLikeLog reports whether a No.U header row appears within the first
// lines of path.
func LooksLikeLog(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for i := 0; i < sniffLines && sc.Scan(); i++ {
		line := strings.TrimSpace(sc.Text())
		if line == cplog.HeaderToken || strings.HasPrefix(line, cplog.HeaderToken+"\t") {
			return true, nil
		}
	}
	return false, sc.Err()
}
