package commands

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

func newCollectCommand() *cobra.Command {
	var (
		source  string
		pattern string
		dest    string
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Copy training outputs into one directory",
		Long: `collect walks the source directory and copies every file whose name matches
the pattern into dest, flattening the directory structure. Later files overwrite
earlier ones with the same name.`,
		Example: `  mlctl collect -s outputs -d deploy
  mlctl collect -s outputs --pattern '*.json' -d deploy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := collect(cmd.OutOrStdout(), source, pattern, dest)
			return err
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "outputs", "directory searched recursively")
	cmd.Flags().StringVar(&pattern, "pattern", "*.*", "file name pattern")
	cmd.Flags().StringVarP(&dest, "dest", "d", ".", "destination directory")
	return cmd
}

// collect copies the matching files and returns their destination paths. A failed
// copy is reported and skipped.
func collect(w io.Writer, source, pattern, dest string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, errors.NewInvalidConfigError("pattern", pattern, err.Error())
	}
	printSuccess(w, "Copying %s/**/%s to %s", source, pattern, dest)

	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return nil, errors.WrapIO(err, "create destination")
		}
		printWarning(w, "Created dir %s", dest)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return nil, errors.WrapIO(err, "resolve destination")
	}

	var copied []string
	err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(path); abs == absDest && path != source {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		target := filepath.Join(dest, d.Name())
		printPlain(w, "copying %s to %s", path, dest)
		if err := copyFile(path, target); err != nil {
			printError(w, "%v", err)
			return nil
		}
		copied = append(copied, target)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("source directory", source)
		}
		return nil, errors.WrapIO(err, "walk source")
	}
	printSuccess(w, "Done")
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WrapIO(err, "open "+src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.WrapIO(err, "create "+dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.WrapIO(err, "copy "+src)
	}
	return errors.WrapIO(out.Close(), "close "+dst)
}
