package topology

import (
	"os"

	"golang.org/x/sys/unix"
)

// StatusChannel is the named-pipe control surface original_source exposes
// as jana:status_fname: a FIFO the supervisor's tick polls, writing an
// Engine.Report() to a sibling file whenever a request byte arrives
// (SPEC_FULL.md §4.8, grounded on original_source's status-query FIFO and
// other_examples' unix.Mkfifo/unix.Open usage).
type StatusChannel struct {
	path string
	file *os.File
}

// NewStatusChannel creates (if it does not already exist) and opens path
// as a FIFO in non-blocking read mode, so the supervisor's tick never
// stalls waiting on a requester.
func NewStatusChannel(path string) (*StatusChannel, error) {
	if path == "" {
		return nil, nil
	}
	if err := unix.Mkfifo(path, 0o600); err != nil && err != unix.EEXIST {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return &StatusChannel{path: path, file: os.NewFile(uintptr(fd), path)}, nil
}

// Poll does a non-blocking read for a pending status request, reporting
// true if one was observed since the last Poll.
func (s *StatusChannel) Poll() bool {
	if s == nil || s.file == nil {
		return false
	}
	buf := make([]byte, 64)
	n, err := s.file.Read(buf)
	return err == nil && n > 0
}

// WriteReport writes report to path+".out", the sibling file a requester
// reads back from (the FIFO itself stays open read-only on the supervisor
// side).
func (s *StatusChannel) WriteReport(report string) error {
	if s == nil {
		return nil
	}
	return os.WriteFile(s.path+".out", []byte(report), 0o644)
}

// Close releases the FIFO's read descriptor.
func (s *StatusChannel) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}
