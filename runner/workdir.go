package runner

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// prepareIsolatedDir copies the given fixture-relative paths into a fresh
// temporary directory. Paths that do not exist under the fixture root are
// skipped; the CLI reports them itself.
func prepareIsolatedDir(parent, fixtureRoot string, paths ...string) (string, error) {
	for _, rel := range paths {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return "", fmt.Errorf("fixture path %q escapes the fixture root", rel)
		}
	}
	dir, err := os.MkdirTemp(parent, isolatedDirPattern)
	if err != nil {
		return "", fmt.Errorf("creating isolated work dir: %w", err)
	}
	for _, rel := range paths {
		src := filepath.Join(fixtureRoot, filepath.FromSlash(rel))
		if _, err := os.Lstat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			os.RemoveAll(dir)
			return "", fmt.Errorf("reading fixture %s: %w", rel, err)
		}
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := copyTree(src, dst); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("copying fixture %s: %w", rel, err)
		}
	}
	return dir, nil
}

// copyTree copies a file or directory, keeping permission bits and symlinks
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
