// Package backup reads and writes the on-disk backup layout:
//
//	<root>/<package>/<date>.properties
//	<root>/<package>/<date>/           (archive directory, optional)
package backup

import "errors"

var (
	// ErrInvalidProperties indicates a properties file is missing or malformed.
	ErrInvalidProperties = errors.New("invalid or missing backup properties")

	// ErrVersionMismatch indicates the properties format is not supported.
	ErrVersionMismatch = errors.New("backup properties version not supported")

	// ErrBackupNotFound indicates the requested backup does not exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrRootUnavailable indicates the backup root cannot be accessed.
	ErrRootUnavailable = errors.New("backup root unavailable")
)
