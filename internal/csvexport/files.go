package csvexport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Extension of exported files, without the dot.
const Extension = "csv"

// TimestampLayout is the yyyyMMddHHmmss suffix of exported file names.
const TimestampLayout = "20060102150405"

// maxAttempts bounds the "(n)" suffix search.
const maxAttempts = 10000

// BaseName is "{displayName}__{yyyyMMddHHmmss}" with now taken as is (callers
// convert to the calendar zone). Path separators in displayName become "_".
func BaseName(displayName string, now time.Time) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, strings.TrimSpace(displayName))
	return name + "__" + now.Format(TimestampLayout)
}

// FileName is BaseName plus ".csv".
func FileName(displayName string, now time.Time) string {
	return BaseName(displayName, now) + "." + Extension
}

// ResolveUniqueName returns dir/base.ext, or the first dir/base (n).ext with
// n = 1, 2, ... that does not exist yet.
//
// The check is not atomic; WriteUnique closes the race.
func ResolveUniqueName(dir, base, ext string) (string, error) {
	for n := 0; n < maxAttempts; n++ {
		p := candidate(dir, base, ext, n)
		_, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("no free name for %s.%s in %s after %d attempts", base, ext, dir, maxAttempts)
}

func candidate(dir, base, ext string, n int) string {
	name := base
	if n > 0 {
		name = fmt.Sprintf("%s (%d)", base, n)
	}
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(dir, name)
}

// WriteUnique writes data under a fresh name in dir (created if needed) and
// returns the path. Creation uses O_EXCL; losing a race to another writer
// moves on to the next free name.
func WriteUnique(dir, base, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p, err := ResolveUniqueName(dir, base, ext)
		if err != nil {
			return "", err
		}
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", p, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(p)
			return "", fmt.Errorf("write %s: %w", p, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(p)
			return "", fmt.Errorf("close %s: %w", p, err)
		}
		return p, nil
	}
	return "", fmt.Errorf("no free name for %s.%s in %s", base, ext, dir)
}

// WriteReplacing writes data to dir/name, replacing any existing file. The
// file is written to a temporary sibling first and renamed into place.
func WriteReplacing(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create share dir: %w", err)
	}
	dst := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename to %s: %w", dst, err)
	}
	return dst, nil
}
