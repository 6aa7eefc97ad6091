package errors

import (
	"io/fs"
	"net"
	"net/url"
)

// Kind classifies an error for the caller: configuration errors abort before any work
// starts, data errors abort the current job or request, I/O errors propagate unchanged.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindData
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindData:
		return "data"
	case KindIO:
		return "io"
	default:
		return "internal"
	}
}

// KindOf returns the taxonomy bucket of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var (
		cfgErr     *ConfigError
		paramErr   *ParameterError
		missingErr *MissingColumnError
		notFound   *NotFoundError
		structErr  *StructureMismatchError
		outlierErr *OutlierError
		artErr     *ArtifactError
		valueErr   *ValueError
		dimErr     *DimensionError
		ioErr      *IOError
		urlErr     *url.Error
		netErr     net.Error
		pathErr    *fs.PathError
	)

	switch {
	case As(err, &cfgErr), As(err, &paramErr):
		return KindConfig
	case As(err, &missingErr), As(err, &notFound), As(err, &structErr),
		As(err, &outlierErr), As(err, &artErr), As(err, &valueErr), As(err, &dimErr):
		return KindData
	case As(err, &ioErr), As(err, &urlErr), As(err, &netErr), As(err, &pathErr):
		return KindIO
	}
	return KindInternal
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }

// IsData reports whether err is a data error.
func IsData(err error) bool { return KindOf(err) == KindData }

// IsIO reports whether err is an I/O error.
func IsIO(err error) bool { return KindOf(err) == KindIO }
