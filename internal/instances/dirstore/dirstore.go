// Package dirstore exposes a directory of instance XML files as an
// instances.Repository, for devices pulled over USB or exported archives
// where the instances database is not available.
//
// Layout follows Collect: <dir>/<form>_<timestamp>/<form>_<timestamp>.xml,
// but any depth works; every *.xml file below dir is one instance.
package dirstore

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"formsummary/internal/instances"
	"formsummary/internal/xmlfield"
)

// Store scans Dir on every query; nothing is cached between calls.
type Store struct {
	dir          string
	displayNames map[string]string
}

func init() {
	instances.RegisterStore("dir", New)
}

// New returns a Store rooted at cfg.Dir.
func New(_ context.Context, cfg instances.StoreConfig) (instances.Repository, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("dirstore: missing store.dir")
	}
	return &Store{dir: cfg.Dir, displayNames: cfg.DisplayNames}, nil
}

func (s *Store) Close() {}

// AllByStatus implements instances.Repository.
//
// Files on disk carry no lifecycle status; every file is treated as
// complete. Files are returned in lexical path order. A file that fails to
// parse is still returned (with no form id) so that its absence of values is
// decided by the pipeline, not here.
func (s *Store) AllByStatus(ctx context.Context, statuses ...instances.Status) ([]instances.Instance, error) {
	wanted := false
	for _, st := range statuses {
		if st == instances.StatusComplete {
			wanted = true
			break
		}
	}
	if !wanted {
		return nil, nil
	}

	var paths []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".xml") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dirstore: walk %s: %w", s.dir, err)
	}
	sort.Strings(paths)

	out := make([]instances.Instance, 0, len(paths))
	for _, p := range paths {
		out = append(out, s.describe(p))
	}
	return out, nil
}

func (s *Store) describe(path string) instances.Instance {
	in := instances.Instance{
		ID:       pathID(path),
		Status:   instances.StatusComplete,
		FilePath: path,
	}

	doc, err := xmlfield.Load(path)
	if err != nil {
		in.DisplayName = filepath.Base(path)
		return in
	}

	in.FormID = doc.RootAttr("id").OrElse("")
	if id, ok := doc.Field("instanceID").Get(); ok {
		if parsed, err := uuid.Parse(strings.TrimPrefix(id, "uuid:")); err == nil {
			in.ID = parsed.String()
		}
	}

	in.DisplayName = in.FormID
	if name, ok := s.displayNames[in.FormID]; ok && name != "" {
		in.DisplayName = name
	}
	return in
}

// pathID derives a stable UUID for instances without a usable instanceID.
func pathID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}
