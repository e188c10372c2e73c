package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

const (
	metaKeySourcePath   = "source_path"
	metaKeySourceMtime  = "source_mtime"
	metaKeySourceSize   = "source_size"
	metaKeySidecarMtime = "sidecar_mtime"

	// SidecarSuffix names the optional metadata file next to an inbox document.
	SidecarSuffix = ".meta.yaml"
)

// Sidecar is the metadata an approver can attach to an inbox document.
type Sidecar struct {
	Title          string         `yaml:"title"`
	Source         string         `yaml:"source"`
	Category       string         `yaml:"category"`
	TechnicalLevel int            `yaml:"technical_level"`
	Confidential   bool           `yaml:"confidential"`
	ContentType    string         `yaml:"content_type"`
	Topics         []string       `yaml:"topics"`
	Extra          map[string]any `yaml:"extra"`
}

// IsSidecar reports whether path is a sidecar metadata file.
func IsSidecar(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), SidecarSuffix)
}

// readSidecar loads <path>.meta.yaml. A missing sidecar is not an error.
func readSidecar(path string) (*Sidecar, os.FileInfo, error) {
	sidecarPath := path + SidecarSuffix
	info, err := os.Stat(sidecarPath)
	if errors.Is(err, os.ErrNotExist) {
		return &Sidecar{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("stat sidecar: %w", err)
	}
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, nil, fmt.Errorf("parse sidecar %s: %w", sidecarPath, err)
	}
	return &sc, info, nil
}

// IndexFile reads a file from path and indexes it. The document ID is derived from the
// absolute path so re-indexing updates the same document. If allowedExts is non-nil and
// non-empty, the file's extension must be in the list (case-insensitive).
// Skips indexing if the file and its sidecar are unchanged since they were last indexed.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) error {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	if IsSidecar(absPath) {
		return fmt.Errorf("%s is a sidecar metadata file", absPath)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", absPath)
	}
	sidecar, sidecarInfo, err := readSidecar(absPath)
	if err != nil {
		return err
	}
	docID := fileid.FileDocID(absPath)
	if idx.unchanged(ctx, absPath, docID, info, sidecarInfo) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return nil
	}
	text, err := idx.extractContent(absPath)
	if err != nil {
		return fmt.Errorf("extract content: %w", err)
	}

	extra := map[string]any{}
	for k, v := range sidecar.Extra {
		extra[k] = v
	}
	// Values are stored as strings to avoid JSON float64 precision loss (UnixNano exceeds 53 bits).
	extra[metaKeySourcePath] = absPath
	extra[metaKeySourceMtime] = strconv.FormatInt(info.ModTime().UnixNano(), 10)
	extra[metaKeySourceSize] = strconv.FormatInt(info.Size(), 10)
	if sidecarInfo != nil {
		extra[metaKeySidecarMtime] = strconv.FormatInt(sidecarInfo.ModTime().UnixNano(), 10)
	}

	input := &models.DocumentInput{
		ID:             docID,
		Title:          sidecar.Title,
		Source:         sidecar.Source,
		Content:        text,
		Category:       sidecar.Category,
		TechnicalLevel: sidecar.TechnicalLevel,
		Confidential:   sidecar.Confidential,
		ContentType:    sidecar.ContentType,
		Topics:         sidecar.Topics,
		Extra:          extra,
		UpdatedAt:      info.ModTime().UTC(),
	}
	if input.Title == "" {
		input.Title = titleFromPath(absPath)
	}
	if input.Source == "" {
		input.Source = absPath
	}
	if _, _, err := idx.IndexDocument(ctx, input); err != nil {
		return err
	}
	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	return nil
}

// titleFromPath turns "employee_handbook-2024.pdf" into "employee handbook 2024".
func titleFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
}

// unchanged reports whether the stored document was indexed from this exact
// file and sidecar version.
func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info, sidecarInfo os.FileInfo) bool {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Extra == nil {
		return false
	}
	if doc.Extra[metaKeySourcePath] != absPath {
		return false
	}
	if extraInt64(doc.Extra, metaKeySourceMtime) != info.ModTime().UnixNano() ||
		extraInt64(doc.Extra, metaKeySourceSize) != info.Size() {
		return false
	}
	var sidecarMtime int64
	if sidecarInfo != nil {
		sidecarMtime = sidecarInfo.ModTime().UnixNano()
	}
	return extraInt64(doc.Extra, metaKeySidecarMtime) == sidecarMtime
}

func extraInt64(m map[string]any, key string) int64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IndexDirectory walks dir and indexes each regular file whose extension is in
// allowedExts (if non-nil and non-empty; otherwise all files). Sidecar files
// are never indexed on their own. A file that fails does not stop the walk;
// the failures are joined into the returned error.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	start := time.Now()
	var errs []error
	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSidecar(path) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if indexErr := idx.IndexFile(ctx, path, allowedExts); indexErr != nil {
			idx.logger.Warn("indexer failed to index file", zap.String("path", path), zap.Error(indexErr))
			errs = append(errs, fmt.Errorf("%s: %w", path, indexErr))
			return nil
		}
		n++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	idx.logger.Debug("indexer directory indexed",
		zap.String("dir", absDir), zap.Int("files", n), zap.Duration("elapsed", time.Since(start)))
	return n, errors.Join(errs...)
}

// RemoveFile removes the document indexed from path. Unknown files return
// models.ErrDocumentNotFound.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return idx.RemoveDocument(ctx, fileid.FileDocID(absPath))
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
