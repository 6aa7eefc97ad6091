package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// HTTPClient is the client used for downloads. Tests may swap it.
var HTTPClient = http.DefaultClient

// Download fetches rawURL into localPath. An empty localPath uses the last segment of
// the URL. An existing file is reused unless overwrite is set. Failures are returned
// as I/O errors; there are no retries.
func Download(ctx context.Context, rawURL, localPath string, overwrite bool) (string, error) {
	logger := log.GetLoggerWithName("dataset").With(log.DatasetURLKey, rawURL)

	if localPath == "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", errors.NewConfigError("dataset.source_url", rawURL, nil)
		}
		localPath = path.Base(u.Path)
		if localPath == "." || localPath == "/" {
			return "", errors.NewMissingConfigError("dataset.dataset_filename", "cannot derive a filename from the source URL")
		}
		logger.Debug("No filename provided, deriving it from the URL", log.DatasetPathKey, localPath)
	}

	if !overwrite {
		if _, err := os.Stat(localPath); err == nil {
			logger.Info("File already exists", log.DatasetPathKey, localPath)
			return localPath, nil
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.NewConfigError("dataset.source_url", rawURL, nil)
	}
	resp, err := HTTPClient.Do(req)
	if err != nil {
		return "", errors.WrapIO(err, "download dataset")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.WrapIO(fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status), "download dataset")
	}

	// Partial transfers stay under a .part name.
	tmp, err := os.CreateTemp(filepath.Dir(localPath), filepath.Base(localPath)+".*.part")
	if err != nil {
		return "", errors.WrapIO(err, "create dataset file")
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", errors.WrapIO(copyErr, "write dataset file")
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.WrapIO(err, "move dataset file")
	}

	logger.Info("File saved",
		log.DatasetPathKey, localPath,
		log.BytesKey, n,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return localPath, nil
}

// Create makes sure the dataset described by cfg is present locally and returns its
// path. Without a SourceURL it only checks that the file exists.
func Create(ctx context.Context, cfg Config) (string, error) {
	logger := log.GetLoggerWithName("dataset")
	target := cfg.Path()

	if cfg.SourceURL == "" {
		if _, err := os.Stat(target); err != nil {
			if os.IsNotExist(err) {
				logger.Error("Dataset file not found and no source URL configured", log.DatasetPathKey, target)
				return "", errors.NewNotFoundError("dataset", target)
			}
			return "", errors.WrapIO(err, "stat dataset file")
		}
		return target, nil
	}

	if cfg.Dir != "" {
		if _, err := os.Stat(cfg.Dir); os.IsNotExist(err) {
			if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
				return "", errors.WrapIO(err, "create dataset dir")
			}
			logger.Info("Created dir for raw data", log.DatasetPathKey, cfg.Dir)
		}
	}

	return Download(ctx, cfg.SourceURL, target, cfg.Download)
}
