package documents

import (
	"fmt"
	"strings"
)

// DefaultMaxFileBytes is the per-file size ceiling when none is configured.
const DefaultMaxFileBytes int64 = 10 << 20

// DefaultExtensions are the file types accepted when none are configured.
var DefaultExtensions = []string{"pdf", "doc", "docx", "txt"}

// Policy decides which files may be ingested.
type Policy struct {
	allowed  map[string]struct{}
	maxBytes int64
}

// NewPolicy builds a Policy. Extensions are matched case-insensitively and may
// be given with or without a leading dot.
func NewPolicy(extensions []string, maxBytes int64) Policy {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return Policy{allowed: allowed, maxBytes: maxBytes}
}

// DefaultPolicy accepts pdf, doc, docx and txt up to 10 MiB.
func DefaultPolicy() Policy {
	return NewPolicy(nil, 0)
}

// MaxFileBytes returns the per-file ceiling.
func (p Policy) MaxFileBytes() int64 { return p.maxBytes }

// Validate checks extension then size, stopping at the first failure.
func (p Policy) Validate(f FileInput) error {
	ext := Extension(f.Name)
	if _, ok := p.allowed[ext]; !ok {
		shown := ext
		if shown == "" {
			shown = "(none)"
		}
		return &ValidationError{
			Kind:   KindUnsupportedType,
			File:   f.Name,
			Detail: fmt.Sprintf("file type %s is not supported", shown),
		}
	}
	if f.Size > p.maxBytes {
		return &ValidationError{
			Kind:   KindTooLarge,
			File:   f.Name,
			Detail: fmt.Sprintf("file is too large, maximum size is %s", humanBytes(p.maxBytes)),
		}
	}
	return nil
}

// ValidateBatch validates every file and returns the first failure. An empty
// batch is itself a failure.
func (p Policy) ValidateBatch(files []FileInput) error {
	if len(files) == 0 {
		return &ValidationError{Kind: KindEmptyBatch, Detail: "no files provided"}
	}
	for _, f := range files {
		if err := p.Validate(f); err != nil {
			return err
		}
	}
	return nil
}

// Extension returns the lower-cased suffix after the last '.', or "" if the
// name has none.
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
