package handlers

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/shopspring/decimal"
)

const layoutFile = "layout.html"

// TemplateCache holds parsed templates, one per page, each joined with the
// shared layout.
type TemplateCache struct {
	cache map[string]*template.Template
	mu    sync.RWMutex
	funcs template.FuncMap
}

func NewTemplateCache() *TemplateCache {
	return &TemplateCache{
		cache: make(map[string]*template.Template),
		funcs: defaultFuncs(),
	}
}

// Load parses every page in dir of fsys together with dir/layout.html.
func (tc *TemplateCache) Load(fsys fs.FS, dir string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	files, err := fs.Glob(fsys, path.Join(dir, "*.html"))
	if err != nil {
		return err
	}
	layout := path.Join(dir, layoutFile)
	for _, file := range files {
		name := path.Base(file)
		if name == layoutFile {
			continue
		}
		tmpl, err := template.New(name).Funcs(tc.funcs).ParseFS(fsys, layout, file)
		if err != nil {
			slog.Error("Failed to parse template", "file", file, "error", err)
			return err
		}
		tc.cache[name] = tmpl
		slog.Debug("Cached template", "name", name)
	}
	if len(tc.cache) == 0 {
		return fmt.Errorf("no templates found in %s", dir)
	}
	return nil
}

func (tc *TemplateCache) Get(name string) *template.Template {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.cache[name]
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"prevPage": func(currentPage int) int { return currentPage - 1 },
		"nextPage": func(currentPage int) int { return currentPage + 1 },
		"money": func(d decimal.Decimal) string {
			return "Rs. " + d.StringFixed(2)
		},
		"date": func(t time.Time) string {
			return t.Format("02 Jan 2006, 15:04")
		},
		"statusClass": func(s models.OrderStatus) string {
			return s.CSSClass()
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}
}
