package iprange

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidAddress is returned when a string is not a dotted-decimal IPv4 address made of four octets in 0-255.
var ErrInvalidAddress = errors.New("invalid IPv4 address")

// ErrNoValidInput is returned when a lookup request contains no valid IPv4 address after filtering.
var ErrNoValidInput = errors.New("no valid IPv4 addresses in input")

// ErrUnsupportedFile is returned when the type of a file cannot be detected from its name.
var ErrUnsupportedFile = errors.New("unsupported file type; expected .json, .csv, .mmdb or MaxMind locations/blocks CSV")

// ErrEmptySource is returned when a file was parsed successfully but did not contain any rows.
var ErrEmptySource = errors.New("file did not contain any usable rows")

// ErrDbClosed is returned when an operation is attempted on a closed Db.
var ErrDbClosed = errors.New("iprange db closed")

// ErrNoStorageDriver is returned when an export is saved but Options.StorageDriver was nil.
var ErrNoStorageDriver = errors.New("no storage driver configured")

// ErrExportNameTooLong is returned when an export name exceeds ExportNameMaxSize bytes.
var ErrExportNameTooLong = errors.New(fmt.Sprintf("export name exceeds %d bytes", ExportNameMaxSize))

// ParseError is returned when a file could not be parsed.
// Includes the name of the offending file.
type ParseError struct {
	// The name of the file that failed to parse.
	File string

	// The underlying error.
	Err error
}

func (err *ParseError) Error() string {
	return fmt.Sprintf("failed to parse file \"%s\": %v", err.File, err.Err)
}

func (err *ParseError) Unwrap() error {
	return err.Err
}

// NewParseError creates a new ParseError instance with the specified file name and underlying error.
func NewParseError(file string, err error) *ParseError {
	return &ParseError{
		File: file,
		Err:  err,
	}
}

// ConfigurationError is returned when a generation or profile request is not valid.
// No partial action is performed when it is returned.
type ConfigurationError struct {
	// A user-facing message.
	Msg string
}

func (err *ConfigurationError) Error() string {
	return "invalid configuration: " + err.Msg
}

// NewConfigurationError creates a new ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Msg: fmt.Sprintf(format, args...),
	}
}
