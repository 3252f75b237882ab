package server

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
)

// Assets implements host.Assets. Mounted file systems are served under
// /<prefix>/ and every stylesheet or script added is linked from the page
// head, in the order it was added.
type Assets struct {
	mu          sync.RWMutex
	mounts      map[string]fs.FS
	stylesheets []string
	scripts     []string
}

var _ host.Assets = (*Assets)(nil)

func NewAssets() *Assets {
	return &Assets{mounts: make(map[string]fs.FS)}
}

func (a *Assets) Mount(prefix string, fsys fs.FS) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mounts[strings.Trim(prefix, "/")] = fsys
}

// resolve finds the mount serving p and the name of p inside it.
func (a *Assets) resolve(p string) (fs.FS, string, bool) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")

	a.mu.RLock()
	defer a.mu.RUnlock()
	for prefix, fsys := range a.mounts {
		if rest, ok := strings.CutPrefix(p, prefix+"/"); ok {
			return fsys, rest, true
		}
	}
	return nil, "", false
}

func (a *Assets) check(href string) error {
	fsys, name, ok := a.resolve(href)
	if !ok {
		return fmt.Errorf("%s: no asset mount", href)
	}
	if _, err := fs.Stat(fsys, name); err != nil {
		return fmt.Errorf("failed to load %s: %w", href, err)
	}
	return nil
}

func (a *Assets) AddStylesheet(href string) error {
	if err := a.check(href); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !slices.Contains(a.stylesheets, href) {
		a.stylesheets = append(a.stylesheets, href)
	}
	return nil
}

func (a *Assets) AddScript(ctx context.Context, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.check(src); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !slices.Contains(a.scripts, src) {
		a.scripts = append(a.scripts, src)
	}
	return nil
}

// Head returns the stylesheets and scripts to link, in order.
func (a *Assets) Head() (stylesheets, scripts []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.stylesheets), slices.Clone(a.scripts)
}

func (a *Assets) serve(c echo.Context) error {
	fsys, name, ok := a.resolve(c.Request().URL.Path)
	if !ok {
		return echo.ErrNotFound
	}
	if _, err := fs.Stat(fsys, name); err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return echo.StaticFileHandler(name, fsys)(c)
}
