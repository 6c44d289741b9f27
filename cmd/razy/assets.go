package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/razy-go/razy"
	"github.com/spf13/cobra"
)

func newAssetsCmd() *cobra.Command {
	var outDir string
	var debug bool

	cmd := &cobra.Command{
		Use:   "assets <host>",
		Short: "Materialize the asset maps of a host's distributors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)
			config, err := loadAppConfig()
			if err != nil {
				return err
			}

			app := razy.NewApplication(flagRoot, config, args[0],
				razy.WithAppLogger(logger),
				razy.WithRegistry(controllers),
			)
			domain, err := app.Domain()
			if err != nil {
				return err
			}

			materialized := 0
			for _, site := range config.Domains[domain.Name()].Sites {
				d, _, err := app.Distributor(cmd.Context(), site.Path)
				if err != nil {
					return err
				}
				for dest, src := range d.Assets() {
					target := filepath.Join(outDir, d.Code(), dest)
					if err := copyTree(src, target); err != nil {
						return fmt.Errorf("asset %s: %w", dest, err)
					}
					materialized++
				}
			}
			logger.Info("Assets materialized", "host", args[0], "count", materialized, "out", outDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "assets", "output directory")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging")
	return cmd
}

// copyFS mirrors os.CopyFS (added in Go 1.23), which is unavailable on
// the Go 1.21 toolchain this module is built with: it copies fsys into
// dir, refusing to overwrite existing files and rejecting non-regular
// entries such as symlinks.
func copyFS(dir string, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		newPath := filepath.Join(dir, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(newPath, 0o777)
		}
		if !d.Type().IsRegular() {
			return &os.PathError{Op: "CopyFS", Path: path, Err: os.ErrInvalid}
		}
		r, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer r.Close()
		info, err := r.Stat()
		if err != nil {
			return err
		}
		w, err := os.OpenFile(newPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666|info.Mode()&0o777)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, r); err != nil {
			w.Close()
			return &os.PathError{Op: "Copy", Path: newPath, Err: err}
		}
		return w.Close()
	})
}

// copyTree copies a file or directory tree from src to dst, creating
// parent directories as needed.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return copyFS(dst, os.DirFS(src))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
