package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/weftworks/weft/internal/compiler"
)

// LoadError reports a failure to locate or compile definition files.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDefinitions compiles the CUE definitions at path, which may be a
// single .cue file or a directory. Directories are walked recursively;
// files compile in sorted path order and merge into one definition set,
// so sync registration order is deterministic across runs.
func LoadDefinitions(path string) (*compiler.Definitions, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing %s: %v", path, err)}
	}

	var files []string
	if info.IsDir() {
		files, err = findCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("scanning %s: %v", path, err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no .cue files found in %s", path)}
		}
	} else {
		files = []string{path}
	}

	all := make([]*compiler.Definitions, 0, len(files))
	for _, file := range files {
		defs, err := compiler.CompileFile(file)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s: %v", file, err)}
		}
		all = append(all, defs)
	}

	merged, err := compiler.Merge(all...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	if len(merged.Syncs) == 0 && len(merged.Concepts) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no syncs or concepts found in definitions"}
	}
	return merged, nil
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
