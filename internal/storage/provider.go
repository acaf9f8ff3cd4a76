// Package storage keeps exported backup documents on disk.
package storage

import "github.com/starford/bangd/internal/models"

// Provider is the interface for backup file operations. Names are bare file
// names inside the backup directory.
type Provider interface {
	// List returns every .json backup, newest first.
	List() ([]models.BackupFile, error)
	// Read returns the raw bytes of a backup.
	Read(name string) ([]byte, error)
	// Write atomically writes a backup.
	Write(name string, content []byte) error
	// Delete removes a backup.
	Delete(name string) error
}
