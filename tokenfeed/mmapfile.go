package tokenfeed

import (
	"fmt"
	"os"
	"syscall"
)

// mappedFile is a read-only memory mapping of one catalogue file.
// Sequences are sliced straight out of the mapping and copied during
// token conversion, so nothing handed to a caller outlives the map.
type mappedFile struct {
	data []byte
}

func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		return &mappedFile{}, nil
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("%s is %d bytes, too large to map", path, size)
	}

	data, err := syscall.Mmap(
		int(f.Fd()), 0, int(size),
		syscall.PROT_READ, syscall.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mappedFile{data: data}, nil
}

func (mf *mappedFile) size() int64 {
	return int64(len(mf.data))
}

// sequence returns the n raw bytes at off. Offsets come from the
// pointer vector, whose bounds were proven against the file size at
// construction.
func (mf *mappedFile) sequence(off, n int64) []byte {
	return mf.data[off : off+n]
}

func (mf *mappedFile) unmap() error {
	if mf.data == nil {
		return nil
	}
	err := syscall.Munmap(mf.data)
	mf.data = nil
	return err
}
