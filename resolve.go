package jobsh

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver maps a program name to an executable path. dir is the
// shell's working directory.
type PathResolver func(name string, env *Environment, dir string) (string, error)

// SearchPath resolves names containing a slash against dir and everything
// else against the directories in env's PATH.
func SearchPath(name string, env *Environment, dir string) (string, error) {
	if name == "" {
		return "", ErrCommandNotFound
	}
	if strings.Contains(name, "/") {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if err := checkExecutable(path); err != nil {
			return "", err
		}
		return path, nil
	}

	for _, d := range filepath.SplitList(env.Value("PATH")) {
		if d == "" {
			d = "."
		}
		if !filepath.IsAbs(d) {
			d = filepath.Join(dir, d)
		}
		path := filepath.Join(d, name)
		if err := checkExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", ErrCommandNotFound
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrCommandNotFound
		}
		return errors.Join(ErrSpawnFailed, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return errors.Join(ErrSpawnFailed, fs.ErrPermission)
	}
	return nil
}
