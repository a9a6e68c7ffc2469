package upload

import (
	"regexp"
	"strconv"
)

// contentRangePattern matches "bytes {start}-{end}/{total}". End is the
// zero-indexed position of the chunk's last byte, inclusive.
var contentRangePattern = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+)$`)

// ContentRange is a parsed Content-Range header.
type ContentRange struct {
	Start int64
	End   int64
	Total int64
}

// Length returns the number of bytes the range covers.
func (r ContentRange) Length() int64 {
	return r.End - r.Start + 1
}

// ParseContentRange parses a Content-Range header value. The second
// return value is false when the header is missing or malformed.
func ParseContentRange(header string) (ContentRange, bool) {
	m := contentRangePattern.FindStringSubmatch(header)
	if m == nil {
		return ContentRange{}, false
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ContentRange{}, false
	}
	end, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return ContentRange{}, false
	}
	total, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return ContentRange{}, false
	}

	if end < start {
		return ContentRange{}, false
	}

	return ContentRange{Start: start, End: end, Total: total}, true
}
