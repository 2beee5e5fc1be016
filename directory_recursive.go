package ftp

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// UploadDir recursively uploads the contents of the local directory
// localDir to remoteDir, creating remoteDir and any subdirectories as
// needed. Symlinks are skipped; they carry no portable FTP representation.
func (c *Client) UploadDir(localDir, remoteDir string) error {
	if err := c.ensureRemoteDir(remoteDir); err != nil {
		return err
	}

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("failed to read local directory %q: %w", localDir, err)
	}

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", entry.Name(), err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		localPath := filepath.Join(localDir, entry.Name())
		remotePath := path.Join(remoteDir, entry.Name())

		if entry.IsDir() {
			if err := c.UploadDir(localPath, remotePath); err != nil {
				return err
			}
			continue
		}

		if err := c.UploadFile(localPath, remotePath); err != nil {
			return fmt.Errorf("failed to upload %q: %w", localPath, err)
		}
	}

	return nil
}

// ensureRemoteDir creates remoteDir if it does not already exist.
// The server rejecting MKD because the directory is already there is not
// an error; any other non-2xx response is.
func (c *Client) ensureRemoteDir(remoteDir string) error {
	if err := c.MakeDir(remoteDir); err != nil {
		if protoErr, ok := err.(*ProtocolError); ok && protoErr.IsPermanent() {
			return nil
		}
		return fmt.Errorf("failed to create remote directory %q: %w", remoteDir, err)
	}
	return nil
}

// DownloadDir recursively downloads remoteDir and its contents into the
// local directory localDir, which is created if it does not already exist.
func (c *Client) DownloadDir(remoteDir, localDir string) error {
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return fmt.Errorf("failed to create local directory %q: %w", localDir, err)
	}

	entries, err := c.List(remoteDir)
	if err != nil {
		return fmt.Errorf("failed to list remote directory %q: %w", remoteDir, err)
	}

	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}

		remotePath := path.Join(remoteDir, entry.Name)
		localPath := filepath.Join(localDir, entry.Name)

		switch entry.Type {
		case "dir":
			if err := c.DownloadDir(remotePath, localPath); err != nil {
				return err
			}
		case "link":
			continue
		default:
			if err := c.DownloadFile(remotePath, localPath); err != nil {
				return fmt.Errorf("failed to download %q: %w", remotePath, err)
			}
		}
	}

	return nil
}

// RemoveDirRecursive deletes remoteDir and everything beneath it: files
// are DELEd and subdirectories are recursed into before their own RMD, so
// the server never sees an RMD against a non-empty directory.
func (c *Client) RemoveDirRecursive(remoteDir string) error {
	entries, err := c.List(remoteDir)
	if err != nil {
		return fmt.Errorf("failed to list %q: %w", remoteDir, err)
	}

	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}

		remotePath := path.Join(remoteDir, entry.Name)

		if entry.Type == "dir" {
			if err := c.RemoveDirRecursive(remotePath); err != nil {
				return err
			}
			continue
		}

		if err := c.Delete(remotePath); err != nil {
			return fmt.Errorf("failed to delete %q: %w", remotePath, err)
		}
	}

	return c.RemoveDir(remoteDir)
}
