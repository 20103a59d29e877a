// Package library serves the plain-text reading library: one folder per
// collection, one .txt file per readable item.
package library

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	TypeFile   = "file"
	TypeFolder = "folder"

	textExt = ".txt"
)

// FileItem is a node of the library tree. Files always encode content and
// folders always encode children, even when empty.
type FileItem struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Content  string     `json:"content"`
	Children []FileItem `json:"children"`
}

func (f FileItem) MarshalJSON() ([]byte, error) {
	if f.Type == TypeFolder {
		children := f.Children
		if children == nil {
			children = []FileItem{}
		}
		return json.Marshal(struct {
			ID       string     `json:"id"`
			Name     string     `json:"name"`
			Type     string     `json:"type"`
			Children []FileItem `json:"children"`
		}{f.ID, f.Name, f.Type, children})
	}
	return json.Marshal(struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}{f.ID, f.Name, f.Type, f.Content})
}

type Library struct {
	dir string
	log *slog.Logger
}

func New(dir string, log *slog.Logger) *Library {
	return &Library{dir: dir, log: log.With(slog.String("component", "library"))}
}

func (l *Library) Dir() string { return l.dir }

// List reads the tree fresh on every call. Any read failure yields an empty
// list rather than a partial tree.
func (l *Library) List() []FileItem {
	items, err := readTree(l.dir)
	if err != nil {
		l.log.Warn("failed to read library", slog.String("dir", l.dir), slog.String("error", err.Error()))
		return []FileItem{}
	}
	return items
}

func readTree(root string) ([]FileItem, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	coll := collate.New(language.English)
	items := []FileItem{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		children, err := readFolder(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		sortByName(coll, children)
		items = append(items, FileItem{
			ID:       entry.Name(),
			Name:     entry.Name(),
			Type:     TypeFolder,
			Children: children,
		})
	}
	sortByName(coll, items)
	return items, nil
}

func readFolder(dir, folder string) ([]FileItem, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}
	children := []FileItem{}
	for _, f := range files {
		if !f.Type().IsRegular() || !strings.HasSuffix(f.Name(), textExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s/%s: %w", folder, f.Name(), err)
		}
		children = append(children, FileItem{
			ID:      folder + "-" + f.Name(),
			Name:    strings.TrimSuffix(f.Name(), textExt),
			Type:    TypeFile,
			Content: string(data),
		})
	}
	return children, nil
}

func sortByName(coll *collate.Collator, items []FileItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return coll.CompareString(items[i].Name, items[j].Name) < 0
	})
}
