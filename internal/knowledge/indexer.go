package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// DefaultExtensions are indexed when IndexDirectory is given none.
var DefaultExtensions = []string{".md", ".txt"}

// DefaultDocsDir is the corpus location checked at startup.
const DefaultDocsDir = "docs/raw"

var htmlConverter = md.NewConverter("", true, nil)

// Indexer loads documentation files into a Store.
type Indexer struct {
	store  Store
	logger *zap.Logger
}

func NewIndexer(store Store, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: store, logger: logger}
}

// IndexDirectory walks dir recursively and adds every non-blank file whose
// extension is in exts. Document ids are slash-separated paths relative to
// dir. HTML files are converted to markdown first. It returns the number of
// documents added.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string, exts []string) (int, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = true
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if want[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("knowledge: walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		doc, ok, err := loadDocument(dir, path)
		if err != nil {
			ix.logger.Warn("skipping unreadable document", zap.String("path", path), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		ix.logger.Info("no documents to index", zap.String("dir", dir))
		return 0, nil
	}
	if err := ix.store.Add(ctx, docs...); err != nil {
		return 0, err
	}
	ix.logger.Info("indexed documents", zap.String("dir", dir), zap.Int("count", len(docs)))
	return len(docs), nil
}

// EnsureIndexed indexes dir only when the store is empty. A missing dir is
// not an error.
func (ix *Indexer) EnsureIndexed(ctx context.Context, dir string) (int, error) {
	n, err := ix.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		ix.logger.Debug("knowledge base already populated", zap.Int("count", n))
		return 0, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		ix.logger.Warn("docs directory not found", zap.String("dir", dir))
		return 0, nil
	}
	return ix.IndexDirectory(ctx, dir, append(append([]string{}, DefaultExtensions...), ".html", ".htm"))
}

func loadDocument(root, path string) (Document, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, false, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	content := string(raw)
	if ext == ".html" || ext == ".htm" {
		if content, err = htmlToMarkdown(content); err != nil {
			return Document{}, false, err
		}
	}
	if strings.TrimSpace(content) == "" {
		return Document{}, false, nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return Document{
		ID:      filepath.ToSlash(rel),
		Content: content,
		Metadata: map[string]string{
			"filename":  filepath.Base(path),
			"filepath":  path,
			"extension": ext,
			"size":      strconv.Itoa(len(raw)),
		},
	}, true, nil
}

// htmlToMarkdown keeps the page body without navigation chrome.
func htmlToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	body := doc.Find("main").First()
	if body.Length() == 0 {
		body = doc.Find("body")
	}
	body.Find("nav, header, footer, script, style").Remove()
	h, err := body.Html()
	if err != nil {
		return "", err
	}
	out, err := htmlConverter.ConvertString(h)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
