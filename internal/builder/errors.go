package builder

import (
	"fmt"
	"io/fs"
)

// EntryTypeError reports a source entry that is neither a regular file nor a
// directory. It aborts the whole build.
type EntryTypeError struct {
	Path string
	Mode fs.FileMode
}

func (e *EntryTypeError) Error() string {
	return fmt.Sprintf("cannot build %s: %s is neither a regular file nor a directory", e.Path, describeMode(e.Mode))
}

func describeMode(m fs.FileMode) string {
	switch {
	case m&fs.ModeSymlink != 0:
		return "symbolic link"
	case m&fs.ModeNamedPipe != 0:
		return "named pipe"
	case m&fs.ModeSocket != 0:
		return "socket"
	case m&fs.ModeCharDevice != 0:
		return "character device"
	case m&fs.ModeDevice != 0:
		return "device"
	default:
		return "irregular file"
	}
}
