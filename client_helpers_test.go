package ftp_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/duskline/goftp"
)

func TestConnect(t *testing.T) {
	// Start a test server with permissive auth
	rootDir := t.TempDir()
	s := newFakeFTPServer(t, rootDir)
	defer s.Close()
	addr := s.Addr()

	t.Run("FTP scheme", func(t *testing.T) {
		url := "ftp://" + addr
		c, err := ftp.Connect(url)
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer func() { _ = c.Quit() }()

		if err := c.Noop(); err != nil {
			t.Errorf("Noop failed: %v", err)
		}
	})

	t.Run("FTP scheme with user info", func(t *testing.T) {
		url := "ftp://anonymous:ftp@" + addr
		c, err := ftp.Connect(url)
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer func() { _ = c.Quit() }()

		if err := c.Noop(); err != nil {
			t.Errorf("Noop failed: %v", err)
		}
	})

	t.Run("FTP scheme with path", func(t *testing.T) {
		// Create a subdirectory directly
		subdir := filepath.Join(rootDir, "subdir")
		if err := os.Mkdir(subdir, 0755); err != nil {
			t.Fatalf("os.Mkdir failed: %v", err)
		}

		url := "ftp://" + addr + "/subdir"
		c, err := ftp.Connect(url)
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer func() { _ = c.Quit() }()

		pwd, err := c.CurrentDir()
		if err != nil {
			t.Fatalf("CurrentDir failed: %v", err)
		}

		if pwd != "/subdir" {
			t.Errorf("Expected path /subdir, got %s", pwd)
		}
	})
}

func TestUploadDownloadFile(t *testing.T) {
	rootDir := t.TempDir()
	s := newFakeFTPServer(t, rootDir)
	defer s.Close()
	addr := s.Addr()

	client, err := ftp.Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Quit() }()

	if err := client.Login("anonymous", "ftp"); err != nil {
		t.Fatal(err)
	}

	// Create a local file
	localContent := []byte("hello world")
	localPath := filepath.Join(t.TempDir(), "local.txt")
	if err := os.WriteFile(localPath, localContent, 0644); err != nil {
		t.Fatal(err)
	}

	// Test UploadFile
	if err := client.UploadFile(localPath, "remote.txt"); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}

	// Verify content on server
	serverContent, err := os.ReadFile(filepath.Join(rootDir, "remote.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(serverContent) != string(localContent) {
		t.Errorf("Server content mismatch: got %s, want %s", serverContent, localContent)
	}

	// Test DownloadFile
	downloadPath := filepath.Join(t.TempDir(), "download.txt")
	if err := client.DownloadFile("remote.txt", downloadPath); err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}

	// Verify local content
	downloadedContent, err := os.ReadFile(downloadPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(downloadedContent) != string(localContent) {
		t.Errorf("Downloaded content mismatch: got %s, want %s", downloadedContent, localContent)
	}
}
