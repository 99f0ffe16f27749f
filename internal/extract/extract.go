// Package extract turns files on disk into documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"docrag/internal/domain"
)

// ErrUnsupported is returned by File for extensions it cannot read.
var ErrUnsupported = errors.New("unsupported file type")

// Extractor reads .txt, .pdf and .md files. Per-file failures are logged and
// skipped so one bad file does not stop a batch.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Supported reports whether File can read name.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".pdf", ".md":
		return true
	}
	return false
}

// Folder extracts every supported, non-hidden file directly inside dir, in
// name order.
func (e *Extractor) Folder(dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, ent := range entries {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, ent.Name()))
	}
	return e.files(paths), nil
}

// Paths expands glob patterns and directories, then extracts the files found.
// A pattern without matches is treated as a literal path.
func (e *Extractor) Paths(patterns []string) ([]domain.Document, error) {
	var docs []domain.Document
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		sort.Strings(matches)
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				e.logger.Warn("skip path", zap.String("path", m), zap.Error(err))
				continue
			}
			if info.IsDir() {
				sub, err := e.Folder(m)
				if err != nil {
					return nil, err
				}
				docs = append(docs, sub...)
				continue
			}
			if strings.HasPrefix(filepath.Base(m), ".") {
				continue
			}
			docs = append(docs, e.files([]string{m})...)
		}
	}
	return docs, nil
}

func (e *Extractor) files(paths []string) []domain.Document {
	var docs []domain.Document
	for _, p := range paths {
		name := filepath.Base(p)
		if !Supported(name) {
			e.logger.Info("unsupported file type", zap.String("file_name", name))
			continue
		}
		doc, err := File(p)
		if err != nil {
			e.logger.Warn("extract failed", zap.String("file_name", name), zap.Error(err))
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			e.logger.Info("no text extracted", zap.String("file_name", name))
			continue
		}
		e.logger.Debug("extracted", zap.String("file_name", name), zap.Int("bytes", len(doc.Text)))
		docs = append(docs, doc)
	}
	return docs
}

// File extracts the text of a single file, keyed by its base name.
func File(path string) (domain.Document, error) {
	name := filepath.Base(path)
	var (
		txt string
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		var data []byte
		data, err = os.ReadFile(path)
		txt = string(data)
	case ".md":
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			txt = Markdown(data)
		}
	case ".pdf":
		txt, err = PDF(path)
	default:
		return domain.Document{}, fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{FileName: name, Text: txt}, nil
}

// PDF returns the plain text of every page in the file at path.
func PDF(path string) (txt string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf %s: %v", filepath.Base(path), r)
		}
	}()
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Markdown renders source to plain text, one block per line.
func Markdown(source []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(source))
				}
				return ast.WalkSkipChildren, nil
			}
		default:
			if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				if s := sb.String(); s != "" && !strings.HasSuffix(s, "\n") {
					sb.WriteByte('\n')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
