package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var dateTimeOriginalPattern = regexp.MustCompile(`^(\d{4}):(\d{2}):(\d{2}) (\d{2}):(\d{2}):(\d{2})$`)

// CaptureDate is an absolute instant together with the wall-clock time it
// was recorded in.
type CaptureDate struct {
	Date      time.Time
	LocalDate LocalDateTime
}

// ToDate combines an exiftool DateTimeOriginal ("2006:01:02 15:04:05") with
// its OffsetTimeOriginal. A missing offset or the "00:00" placeholder is UTC.
func ToDate(dateTimeOriginal, offsetTimeOriginal string) (CaptureDate, error) {
	m := dateTimeOriginalPattern.FindStringSubmatch(dateTimeOriginal)
	if m == nil {
		return CaptureDate{}, ErrDateTimeOriginal
	}

	offset := offsetTimeOriginal
	if offset == "" || offset == "00:00" {
		offset = "Z"
	}

	iso := fmt.Sprintf("%s-%s-%sT%s:%s:%s%s", m[1], m[2], m[3], m[4], m[5], m[6], offset)
	date, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return CaptureDate{}, fmt.Errorf("%w: %s", ErrInvalidDate, iso)
	}

	var local LocalDateTime
	for i := range local {
		// The pattern guarantees digits.
		local[i], _ = strconv.Atoi(m[i+1])
	}

	return CaptureDate{Date: date, LocalDate: local}, nil
}
