package jobsh

import (
	"fmt"
	"os"
	"path/filepath"
)

// redirections holds the files opened for one stage. The parent closes them
// once the child has been started or the builtin has returned.
type redirections struct {
	in  *os.File
	out *os.File
}

func (r *redirections) Close() {
	if r.in != nil {
		r.in.Close()
	}
	if r.out != nil {
		r.out.Close()
	}
}

// openRedirections opens the stage's redirect targets relative to dir.
func openRedirections(st *ExpandedStage, dir string) (*redirections, error) {
	r := &redirections{}
	if st.Input != nil {
		f, err := setupInputRedirection(resolveTarget(st.Input.Path, dir))
		if err != nil {
			return nil, &ExecError{Name: st.Name, Err: fmt.Errorf("%w: %v", ErrRedirect, err)}
		}
		r.in = f
	}
	if st.Output != nil {
		f, err := setupOutputRedirection(resolveTarget(st.Output.Path, dir), st.Output.Append)
		if err != nil {
			r.Close()
			return nil, &ExecError{Name: st.Name, Err: fmt.Errorf("%w: %v", ErrRedirect, err)}
		}
		r.out = f
	}
	return r, nil
}

func resolveTarget(path, dir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func setupOutputRedirection(path string, appendMode bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return os.OpenFile(path, flags, 0644)
}

func setupInputRedirection(path string) (*os.File, error) {
	return os.Open(path)
}
