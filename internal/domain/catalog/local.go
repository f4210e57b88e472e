package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
)

// LoadExtra resolves the "atlas" parameter: a known atlas id, an absolute
// document URL, or an inline JSON document. Whatever it names joins the
// catalog and the returned id becomes addressable like any index-listed
// atlas. Callers rebuild the registry afterwards.
func (c *Catalog) LoadExtra(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("empty atlas value")

	case strings.HasPrefix(value, "{"):
		doc, err := ParseDocument("inline", []byte(value), c.log)
		if err != nil {
			return "", fmt.Errorf("inline atlas: %w", err)
		}
		c.addDocument(doc)
		c.log.Info("inline atlas loaded", zap.String("atlas", doc.ID))
		return doc.ID, nil

	case strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://"):
		data, err := c.fetcher.FetchJSON(ctx, value)
		if err != nil {
			return "", fmt.Errorf("fetch atlas document: %w", err)
		}
		doc, err := ParseDocument(idFromURL(value), data, c.log)
		if err != nil {
			return "", err
		}
		c.addDocument(doc)
		c.log.Info("external atlas loaded", zap.String("atlas", doc.ID), zap.String("url", value))
		return doc.ID, nil

	default:
		c.mu.RLock()
		_, loaded := c.docs[value]
		known := c.known[value]
		c.mu.RUnlock()

		if loaded {
			return value, nil
		}
		if known {
			// index-listed but not loaded yet (or its first fetch failed)
			doc, err := c.fetchDocument(ctx, value)
			if err != nil {
				return "", fmt.Errorf("atlas %q: %w", value, err)
			}
			c.addDocument(doc)
			return doc.ID, nil
		}
		return "", fmt.Errorf("unknown atlas id %q", value)
	}
}

// idFromURL derives an atlas id from a document URL's base name.
func idFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(path.Base(raw), ".json")
	}
	return strings.TrimSuffix(path.Base(u.Path), ".json")
}

// LoadDir loads every *.json atlas document from a directory, keyed by file
// name, in directory order (sorted by filename). A file holding an index
// document (atlases list, no layers) extends the known id set instead of
// becoming an atlas. Malformed files are skipped with a diagnostic. Returns
// the loaded atlas ids.
func (c *Catalog) LoadDir(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read atlas dir %q: %w", dir, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		fname := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, fname)
		if err != nil {
			c.log.Warn("atlas file unreadable", zap.String("file", fname), zap.Error(err))
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		doc, err := ParseDocument(id, data, c.log)
		if err != nil {
			c.log.Warn("atlas file skipped", zap.String("file", fname), zap.Error(err))
			continue
		}

		if len(doc.Atlases) > 0 && len(doc.Layers) == 0 {
			c.mu.Lock()
			for _, known := range doc.Atlases {
				if !c.known[known] {
					c.known[known] = true
					c.atlasIDs = append(c.atlasIDs, known)
				}
			}
			c.mu.Unlock()
			continue
		}

		c.addDocument(doc)
		ids = append(ids, doc.ID)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no atlas documents found in %q", dir)
	}
	return ids, nil
}
