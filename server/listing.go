package server

import (
	"io"
	"os"
	"strconv"
	"time"
)

// formatListLine renders one LIST entry in the Unix "ls -l" style most
// clients parse:
//
//	drwxr-xr-x 1 ftp ftp 4096 Jan 02 15:04 docs/
//	-rw-r--r-- 1 ftp ftp 1234 Mar 07  2023 notes.txt
//
// Entries modified in the current year show the time, older ones the year.
// Directory names carry a trailing slash.
func formatListLine(info os.FileInfo, now time.Time) string {
	kind := byte('-')
	name := info.Name()
	if info.IsDir() {
		kind = 'd'
		name += "/"
	}

	mtime := info.ModTime()
	stamp := mtime.Format("Jan 02  2006")
	if mtime.Year() == now.Year() {
		stamp = mtime.Format("Jan 02 15:04")
	}

	b := make([]byte, 0, 64+len(name))
	b = append(b, kind)
	b = append(b, info.Mode().Perm().String()[1:]...)
	b = append(b, " 1 ftp ftp "...)
	b = strconv.AppendInt(b, info.Size(), 10)
	b = append(b, ' ')
	b = append(b, stamp...)
	b = append(b, ' ')
	b = append(b, name...)
	b = append(b, '\r', '\n')
	return string(b)
}

// writeListing writes the LIST output for target to w. A directory yields
// one line per entry, skipping the protected file for non-admin sessions; a
// file yields a single line.
func (s *session) writeListing(w io.Writer, target string, info os.FileInfo) error {
	now := time.Now()
	if !info.IsDir() {
		_, err := io.WriteString(w, formatListLine(info, now))
		return err
	}

	entries, err := s.server.store.ReadDir(target)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !s.isAdmin && s.isProtectedName(entry.Name()) {
			continue
		}
		if _, err := io.WriteString(w, formatListLine(entry, now)); err != nil {
			return err
		}
	}
	return nil
}
