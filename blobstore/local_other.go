//go:build !unix

package blobstore

// openMapped is unavailable on this platform; LocalStore falls back to
// plain file reads.
func openMapped(string) (Blob, bool, error) {
	return nil, false, nil
}
