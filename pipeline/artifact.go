package pipeline

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/YuminosukeSato/mltemplate/core/model"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Artifact layout: the 4 byte magic, a big endian uint16 format version, then the
// gob encoded Pipeline.
const (
	Magic         = "MLTP"
	FormatVersion = uint16(1)
)

// Encode writes the artifact form of p to w.
func (p *Pipeline) Encode(w io.Writer) error {
	if err := p.requireFitted("Encode"); err != nil {
		return err
	}
	var header [6]byte
	copy(header[:4], Magic)
	binary.BigEndian.PutUint16(header[4:], FormatVersion)
	if _, err := w.Write(header[:]); err != nil {
		return errors.WrapIO(err, "write artifact header")
	}
	if err := model.SaveModelToWriter(p, w); err != nil {
		return errors.NewArtifactError("", "failed to encode pipeline", err)
	}
	return nil
}

// Decode reads an artifact written by Encode. Foreign data, a different format
// version and corrupt bodies fail with an ArtifactError.
func Decode(r io.Reader) (*Pipeline, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.NewArtifactError("", "truncated header", err)
	}
	if !bytes.Equal(header[:4], []byte(Magic)) {
		return nil, errors.NewArtifactError("", "not a pipeline artifact", nil)
	}
	if v := binary.BigEndian.Uint16(header[4:]); v != FormatVersion {
		return nil, errors.NewArtifactError("",
			"format version mismatch: artifact has "+strconv.Itoa(int(v))+", expected "+strconv.Itoa(int(FormatVersion)), nil)
	}

	var p Pipeline
	if err := errors.SafeExecute("pipeline.Decode", func() error {
		return model.LoadModelFromReader(&p, r)
	}); err != nil {
		return nil, errors.NewArtifactError("", "corrupt pipeline body", err)
	}
	if !p.IsFitted() {
		return nil, errors.NewArtifactError("", "artifact holds an incomplete pipeline", nil)
	}
	return &p, nil
}

// Save writes the artifact to path through a temporary file in the same directory.
func (p *Pipeline) Save(path string) (err error) {
	logger := log.GetLoggerWithName("pipeline")
	logger.Debug("Serializing pipeline", log.ArtifactPathKey, path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapIO(err, "create artifact directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.WrapIO(err, "create artifact file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := p.Encode(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return errors.WrapIO(err, "write artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO(err, "close artifact")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.WrapIO(err, "rename artifact")
	}
	logger.Debug("Dump complete", log.ArtifactPathKey, path)
	return nil
}

// Load reads the artifact at path. A missing file fails with a NotFoundError.
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("artifact", path)
		}
		return nil, errors.WrapIO(err, "open artifact")
	}
	defer f.Close()

	p, err := Decode(bufio.NewReader(f))
	if err != nil {
		var ae *errors.ArtifactError
		if errors.As(err, &ae) {
			ae.Path = path
		}
		return nil, err
	}
	log.GetLoggerWithName("pipeline").Info("Pipeline loaded",
		log.ArtifactPathKey, path,
		log.ModelNameKey, p.Metadata.ModelType,
	)
	return p, nil
}
