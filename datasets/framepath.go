package datasets

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveFramePath returns the path of the frame offset frames after base.
// The last run of digits in the file name is taken as the frame number and
// rewritten zero-padded to four digits, e.g.
//
//	ResolveFramePath("foo/bar0007.png", 3) == "foo/bar0010.png"
//
// Directory components are never touched.
func ResolveFramePath(base string, offset int) (string, error) {
	dirEnd := strings.LastIndexByte(base, '/') + 1
	name := base[dirEnd:]

	end := -1
	for i := len(name) - 1; i >= 0; i-- {
		if isDigit(name[i]) {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return "", fmt.Errorf("frame path %q has no frame number", base)
	}
	start := end - 1
	for start > 0 && isDigit(name[start-1]) {
		start--
	}

	num, err := strconv.Atoi(name[start:end])
	if err != nil {
		return "", fmt.Errorf("frame path %q: %w", base, err)
	}
	num += offset
	if num < 0 {
		return "", fmt.Errorf("frame path %q: frame %d is negative after offset %d", base, num, offset)
	}
	return fmt.Sprintf("%s%s%04d%s", base[:dirEnd], name[:start], num, name[end:]), nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
