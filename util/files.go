package util

import (
	"io"
	"os"
	"sort"

	"golang.org/x/sys/unix"
)

// ListFileNamesAt lists names of all entries in given directory, sorted
func ListFileNamesAt(dir *os.File) ([]string, error) {
	if _, err := dir.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// ReadFileAt reads full contents of a file in given directory
func ReadFileAt(dir *os.File, filename string) ([]byte, error) {
	fd, oerr := unix.Openat(int(dir.Fd()), filename, unix.O_RDONLY, 0o644)
	if oerr != nil {
		return nil, oerr
	}
	defer unix.Close(fd)
	var stat unix.Stat_t
	if serr := unix.Fstat(fd, &stat); serr != nil {
		return nil, serr
	}
	buf := make([]byte, stat.Size)
	total := 0
	for total < len(buf) {
		n, rerr := unix.Read(fd, buf[total:])
		if rerr != nil {
			return nil, rerr
		}
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total], nil
}

// UnlinkFileAt unlinks an existing file in given directory
func UnlinkFileAt(dir *os.File, filename string) error {
	return unix.Unlinkat(int(dir.Fd()), filename, 0)
}

// RenameFileAt renames a file inside the given directory
func RenameFileAt(dir *os.File, oldName string, newName string) error {
	return unix.Renameat(int(dir.Fd()), oldName, int(dir.Fd()), newName)
}

// WriteFileAt writes to a new file in given directory
//
// The file is written under a temporary name first and renamed when complete, so readers never see partial contents
func WriteFileAt(dir *os.File, filename string, data []byte, perm os.FileMode) error {
	tmpName := "." + filename + ".tmp"
	fd, oerr := unix.Openat(int(dir.Fd()), tmpName, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, uint32(perm))
	if oerr != nil {
		return oerr
	}
	written := 0
	for written < len(data) {
		n, werr := unix.Write(fd, data[written:])
		if werr != nil {
			unix.Close(fd)
			_ = UnlinkFileAt(dir, tmpName)
			return werr
		}
		written += n
	}
	if cerr := unix.Close(fd); cerr != nil {
		_ = UnlinkFileAt(dir, tmpName)
		return cerr
	}
	return RenameFileAt(dir, tmpName, filename)
}
