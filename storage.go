package iprange

import (
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// StorageDriver is an interface that stores exports and checkpoint data.
type StorageDriver interface {
	// WriteExport writes an export with the specified name, replacing any existing one.
	// The reader will be closed by the function regardless of whether an error occurs.
	// If the name is longer than ExportNameMaxSize bytes, returns ErrExportNameTooLong.
	WriteExport(name string, input io.ReadCloser) error

	// ReadExport opens an export with the specified name for reading.
	// The caller is expected to close the reader.
	// If there is no export with the specified name, the function will return syscall.ENOENT.
	ReadExport(name string) (io.ReadCloser, error)

	// WriteCheckpoints writes all checkpoints.
	// Checkpoints must not be nil.
	WriteCheckpoints(checkpoints *AllCheckpoints) error

	// ReadCheckpoints reads and returns all checkpoints.
	// The returned checkpoints will never be nil if there is no error.
	// If checkpoints have not been saved yet, the function will return syscall.ENOENT.
	ReadCheckpoints() (*AllCheckpoints, error)
}

const fsPermBits = 0644
const checkpointsFilename = "checkpoints.json"

// FsStorageDriver implements StorageDriver by storing exports and checkpoints inside a data directory.
// Use NewFsStorageDriver to create an instance.
type FsStorageDriver struct {
	dataDir string
}

// NewFsStorageDriver creates a new instance of StorageDriver.
// The specified directory must exist and be readable and writable by the current user.
// If the directory does not exist, returns a wrapped syscall.ENOENT.
// If the path is not a directory, returns a wrapped syscall.ENOTDIR.
func NewFsStorageDriver(dataDir string) (*FsStorageDriver, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get absolute path of input path \"%s\" when creating FsStorageDriver instance", dataDir)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return nil, errors.Wrapf(err, "path \"%s\" did not exist when creating FsStorageDriver instance", absPath)
		} else {
			return nil, errors.Wrapf(err, "unexpected error statting path \"%s\" when creating FsStorageDriver instance", absPath)
		}
	}

	if !stat.IsDir() {
		return nil, errors.Wrapf(syscall.ENOTDIR, "path \"%s\" did not point to a directory when creating FsStorageDriver instance", absPath)
	}

	return &FsStorageDriver{
		dataDir: absPath,
	}, nil
}

// Returns the file path for the specified export name.
// Names are escaped so that any name maps to a single file inside the data directory.
func (s *FsStorageDriver) exportPath(name string) (string, error) {
	if len(name) > ExportNameMaxSize {
		return "", errors.Wrapf(ErrExportNameTooLong, "export name \"%s\"", name)
	}

	return filepath.Join(s.dataDir, "export_"+url.PathEscape(name)), nil
}

func (s *FsStorageDriver) WriteExport(name string, input io.ReadCloser) (err error) {
	defer func() {
		_ = input.Close()
	}()

	filePath, err := s.exportPath(name)
	if err != nil {
		return err
	}
	bakFilePath := filePath + ".bak"

	backedUp := false

	// Move existing file to backup if it exists.
	if _, err = os.Stat(filePath); err == nil {
		err = os.Rename(filePath, bakFilePath)
		if err != nil {
			return errors.Wrapf(err, "failed to move existing file \"%s\" to backup path \"%s\"", filePath, bakFilePath)
		}

		backedUp = true
	}

	err = nil

	if backedUp {
		// If the function returns with an error, try to restore the backup.
		defer func() {
			if err != nil {
				_ = os.Remove(filePath)
				_ = os.Rename(bakFilePath, filePath)
			} else {
				_ = os.Remove(bakFilePath)
			}
		}()
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsPermBits)
	if err != nil {
		return errors.Wrapf(err, "failed to open file \"%s\" for writing export \"%s\"", filePath, name)
	}

	_, err = io.Copy(file, input)
	closeErr := file.Close()
	if err != nil {
		return errors.Wrapf(err, "failed to copy input to file \"%s\" for writing export \"%s\"", filePath, name)
	}
	if closeErr != nil {
		err = closeErr
		return errors.Wrapf(err, "failed to close file \"%s\" after writing export \"%s\"", filePath, name)
	}

	return nil
}

func (s *FsStorageDriver) ReadExport(name string) (io.ReadCloser, error) {
	filePath, err := s.exportPath(name)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file \"%s\" for export \"%s\"", filePath, name)
	}

	return file, nil
}

func (s *FsStorageDriver) WriteCheckpoints(checkpoints *AllCheckpoints) error {
	filePath := filepath.Join(s.dataDir, checkpointsFilename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsPermBits)
	if err != nil {
		return errors.Wrapf(err, "failed to open file \"%s\" for writing checkpoints", filePath)
	}

	defer func() {
		_ = file.Close()
	}()

	enc := json.NewEncoder(file)
	err = enc.Encode(checkpoints)
	if err != nil {
		return errors.Wrapf(err, "failed to encode checkpoints to JSON file at \"%s\"", filePath)
	}

	return nil
}

func (s *FsStorageDriver) ReadCheckpoints() (*AllCheckpoints, error) {
	filePath := filepath.Join(s.dataDir, checkpointsFilename)
	file, err := os.OpenFile(filePath, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file \"%s\" for reading checkpoints", filePath)
	}

	defer func() {
		_ = file.Close()
	}()

	var res AllCheckpoints
	dec := json.NewDecoder(file)
	err = dec.Decode(&res)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoints from JSON file at \"%s\"", filePath)
	}

	if res.Checkpoints == nil {
		res.Checkpoints = make(map[string]Checkpoint)
	}

	return &res, nil
}
