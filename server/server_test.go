package server

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerIntegration performs a full end-to-end test of the server
// using a real FTP client.
func TestServerIntegration(t *testing.T) {
	t.Parallel()
	_, addr, rootDir := startServer(t)

	testContent := "Hello, FTP World!"
	fatalIfErr(t, os.WriteFile(filepath.Join(rootDir, "test.txt"), []byte(testContent), 0644), "WriteFile")

	c := dialFTP(t, addr, "alice", "secret")

	// 1. Retrieve an existing file
	r, err := c.Retr("test.txt")
	fatalIfErr(t, err, "Retr")
	buf, err := io.ReadAll(r)
	fatalIfErr(t, err, "ReadAll")
	fatalIfErr(t, r.Close(), "Close")
	if string(buf) != testContent {
		t.Errorf("Expected content %q, got %q", testContent, string(buf))
	}

	// 2. Upload into a new directory
	fatalIfErr(t, c.MakeDir("uploads"), "MakeDir")
	fatalIfErr(t, c.ChangeDir("uploads"), "ChangeDir")
	fatalIfErr(t, c.Stor("new.txt", bytes.NewBufferString("uploaded")), "Stor")

	got, err := os.ReadFile(filepath.Join(rootDir, "uploads", "new.txt"))
	fatalIfErr(t, err, "ReadFile")
	if string(got) != "uploaded" {
		t.Errorf("Expected uploaded content, got %q", string(got))
	}

	// 3. List it
	entries, err := c.List("")
	fatalIfErr(t, err, "List")
	if len(entries) != 1 || entries[0].Name != "new.txt" {
		t.Errorf("Unexpected listing: %+v", entries)
	}

	// 4. Back to the root and remove the directory
	fatalIfErr(t, c.ChangeDirToParent(), "ChangeDirToParent")
	fatalIfErr(t, c.RemoveDir("uploads"), "RemoveDir")
	if _, err := os.Stat(filepath.Join(rootDir, "uploads")); !os.IsNotExist(err) {
		t.Errorf("Expected uploads to be removed, got %v", err)
	}

	fatalIfErr(t, c.NoOp(), "NoOp")
}

// TestConcurrentClients runs several sessions at once, each uploading and
// reading back its own file.
func TestConcurrentClients(t *testing.T) {
	t.Parallel()
	_, addr, rootDir := startServer(t)

	const clients = 8
	var wg sync.WaitGroup
	errs := make(chan error, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := ftp.Dial(addr, ftp.DialWithTimeout(5*time.Second), ftp.DialWithDisabledEPSV(true))
			if err != nil {
				errs <- fmt.Errorf("client %d: Dial: %w", i, err)
				return
			}
			defer c.Quit()
			if err := c.Login("alice", "secret"); err != nil {
				errs <- fmt.Errorf("client %d: Login: %w", i, err)
				return
			}

			name := fmt.Sprintf("file-%d.txt", i)
			content := bytes.Repeat([]byte{byte('a' + i)}, 20000+i)
			if err := c.Stor(name, bytes.NewReader(content)); err != nil {
				errs <- fmt.Errorf("client %d: Stor: %w", i, err)
				return
			}
			r, err := c.Retr(name)
			if err != nil {
				errs <- fmt.Errorf("client %d: Retr: %w", i, err)
				return
			}
			got, err := io.ReadAll(r)
			r.Close()
			if err != nil || !bytes.Equal(got, content) {
				errs <- fmt.Errorf("client %d: content mismatch (%d bytes, err %v)", i, len(got), err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	entries, err := os.ReadDir(rootDir)
	require.NoError(t, err)
	assert.Len(t, entries, clients)
}

// TestSessionStateIsolated checks that the working directory and login of
// one session do not leak into another.
func TestSessionStateIsolated(t *testing.T) {
	t.Parallel()
	_, addr, rootDir := startServer(t)
	require.NoError(t, os.Mkdir(filepath.Join(rootDir, "mine"), 0755))

	a := dialFTP(t, addr, "alice", "secret")
	b := dialFTP(t, addr, "guest", "")

	require.NoError(t, a.ChangeDir("mine"))
	dirA, err := a.CurrentDir()
	require.NoError(t, err)
	dirB, err := b.CurrentDir()
	require.NoError(t, err)

	assert.Equal(t, "/mine", dirA)
	assert.Equal(t, "/", dirB)
}
