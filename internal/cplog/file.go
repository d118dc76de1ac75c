package cplog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxBytes caps how much of a single log is read.
const DefaultMaxBytes int64 = 64 << 20

// Encodings lists the accepted values for Options.Encoding.
var Encodings = []string{"utf-8", "gbk", "gb18030", "big5", "latin1"}

// Options control ParseFile.
type Options struct {
	// Name labels records and errors. Defaults to the file's base name.
	Name     string
	Targets  []string
	Encoding string
	MaxBytes int64
}

// ParseFile reads and decodes path, then parses it with Parse.
func ParseFile(path string, opt Options) (*Result, error) {
	name := opt.Name
	if name == "" {
		name = filepath.Base(path)
	}
	lines, err := ReadLines(path, opt.Encoding, opt.MaxBytes)
	if err != nil {
		return nil, err
	}
	return Parse(name, lines, opt.Targets)
}

// ReadLines loads a log as decoded text lines. Invalid byte sequences are
// replaced rather than rejected.
func ReadLines(path, encoding string, maxBytes int64) ([]string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	t, err := decoder(encoding)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", filepath.Base(path), maxBytes)
	}
	text, _, err := transform.Bytes(t, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", filepath.Base(path), encoding, err)
	}
	return strings.Split(string(text), "\n"), nil
}

// decoder maps an encoding name to a transformer. UTF-8 input may carry a BOM.
func decoder(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "gbk":
		return simplifiedchinese.GBK.NewDecoder(), nil
	case "gb18030":
		return simplifiedchinese.GB18030.NewDecoder(), nil
	case "big5":
		return traditionalchinese.Big5.NewDecoder(), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q (want one of %s)", name, strings.Join(Encodings, ", "))
	}
}
