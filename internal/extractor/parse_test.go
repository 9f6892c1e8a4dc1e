package extractor

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleOutput = `ExifToolVersion                 : 12.76
FileName                        : IMG_0001.jpg
Make                            : FUJIFILM
Model                           : X100V
ProfileDescription              : Display P3
LensMake                        : FUJIFILM
LensModel                       : 23mm F2
ExposureTime                    : 1/250
FNumber                         : 5.6
ISO                             : 160
FocalLength                     : 23.0 mm (35 mm equivalent: 35.0 mm)
ImageWidth                      : 6240
ImageHeight                     : 4160
DateTimeOriginal                : 2024:05:25 15:35:05
OffsetTimeOriginal              : -05:00
Title                           : Harbor
Description                     : Boats at dusk
Location                        : Old Port
Sub-location                    : Old Port, North Pier
CustomTag_One                   : something
not a tag line
`

func TestParseExiftoolMetadata(t *testing.T) {
	md, err := ParseExiftoolMetadata(sampleOutput)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if md.Width != 6240 || md.Height != 4160 {
		t.Fatalf("dimensions = %dx%d", md.Width, md.Height)
	}
	checkString(t, "make", md.Make, "FUJIFILM")
	checkString(t, "model", md.Model, "X100V")
	checkString(t, "profile", md.Profile, "Display P3")
	checkString(t, "lensModel", md.LensModel, "23mm F2")
	checkString(t, "exposureTime", md.ExposureTime, "1/250")
	checkString(t, "title", md.Title, "Harbor")
	checkString(t, "description", md.Description, "Boats at dusk")
	checkString(t, "location", md.Location, "Old Port, North Pier")

	if md.FNumber == nil || *md.FNumber != 5.6 {
		t.Fatalf("fNumber = %v", md.FNumber)
	}
	if md.ISO == nil || *md.ISO != 160 {
		t.Fatalf("iso = %v", md.ISO)
	}
	if md.FocalLength == nil || *md.FocalLength != 23.0 {
		t.Fatalf("focalLength = %v", md.FocalLength)
	}

	want := time.Date(2024, 5, 25, 20, 35, 5, 0, time.UTC)
	if md.Date == nil || !md.Date.Equal(want) {
		t.Fatalf("date = %v, want %v", md.Date, want)
	}
	if md.LocalDate == nil || *md.LocalDate != (LocalDateTime{2024, 5, 25, 15, 35, 5}) {
		t.Fatalf("localDate = %v", md.LocalDate)
	}
}

func TestParseExiftoolMetadataGarbage(t *testing.T) {
	_, err := ParseExiftoolMetadata("garbage text")
	if !errors.Is(err, ErrUnparseableMetadata) {
		t.Fatalf("expected ErrUnparseableMetadata, got %v", err)
	}
	if err.Error() != "could not parse metadata" {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestParseExiftoolMetadataMissingDimensions(t *testing.T) {
	_, err := ParseExiftoolMetadata("Make : Canon\nImageWidth : 100\n")
	if err == nil || !strings.Contains(err.Error(), "ImageHeight") {
		t.Fatalf("expected missing ImageHeight error, got %v", err)
	}
}

func TestParseExiftoolMetadataBadNumber(t *testing.T) {
	_, err := ParseExiftoolMetadata("ImageWidth : wide\nImageHeight : 100\n")
	if err == nil || !strings.Contains(err.Error(), "ImageWidth") {
		t.Fatalf("expected field error naming ImageWidth, got %v", err)
	}
}

func TestParseExiftoolMetadataOptionalFields(t *testing.T) {
	md, err := ParseExiftoolMetadata("Image Width   : 640\nImage_Height : 480\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if md.Width != 640 || md.Height != 480 {
		t.Fatalf("dimensions = %dx%d", md.Width, md.Height)
	}
	if md.Make != nil || md.Date != nil || md.Location != nil || md.FocalLength != nil {
		t.Fatalf("expected optional fields to be empty: %+v", md)
	}
}

func TestLocationPrefersLonger(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"ImageWidth : 1\nImageHeight : 1\nLocation : Central Park\nSub-location : Central\n", "Central Park"},
		{"ImageWidth : 1\nImageHeight : 1\nLocation : Park\nSub-location : Central Park\n", "Central Park"},
		{"ImageWidth : 1\nImageHeight : 1\nSublocation : Only Sub\n", "Only Sub"},
		{"ImageWidth : 1\nImageHeight : 1\nLocation : Only Loc\n", "Only Loc"},
	}
	for _, tc := range cases {
		md, err := ParseExiftoolMetadata(tc.raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		checkString(t, "location", md.Location, tc.want)
	}
}

func TestParseExiftoolMetadataBadDate(t *testing.T) {
	_, err := ParseExiftoolMetadata("ImageWidth : 1\nImageHeight : 1\nDateTimeOriginal : yesterday\n")
	if !errors.Is(err, ErrDateTimeOriginal) {
		t.Fatalf("expected ErrDateTimeOriginal, got %v", err)
	}
}

func TestNormalizeKey(t *testing.T) {
	for in, want := range map[string]string{
		"Sub-location":  "Sublocation",
		"Sub location":  "Sublocation",
		"Lens_Model":    "LensModel",
		"  ImageWidth ": "ImageWidth",
	} {
		if got := NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToDate(t *testing.T) {
	got, err := ToDate("2024:05:25 15:35:05", "-05:00")
	if err != nil {
		t.Fatalf("ToDate: %v", err)
	}
	want, _ := time.Parse(time.RFC3339, "2024-05-25T15:35:05-05:00")
	if !got.Date.Equal(want) {
		t.Fatalf("date = %v, want %v", got.Date, want)
	}
	if got.LocalDate != (LocalDateTime{2024, 5, 25, 15, 35, 5}) {
		t.Fatalf("localDate = %v", got.LocalDate)
	}
}

func TestToDateUTCPlaceholders(t *testing.T) {
	want := time.Date(2024, 5, 25, 15, 35, 5, 0, time.UTC)
	for _, offset := range []string{"", "00:00", "Z", "+00:00"} {
		got, err := ToDate("2024:05:25 15:35:05", offset)
		if err != nil {
			t.Fatalf("ToDate(offset=%q): %v", offset, err)
		}
		if !got.Date.Equal(want) {
			t.Fatalf("ToDate(offset=%q) = %v, want %v", offset, got.Date, want)
		}
	}
}

func TestToDateErrors(t *testing.T) {
	_, err := ToDate("garbage", "-05:00")
	if !errors.Is(err, ErrDateTimeOriginal) || err.Error() != "could not parse DateTimeOriginal field" {
		t.Fatalf("expected DateTimeOriginal error, got %v", err)
	}

	_, err = ToDate("2024:05:25 15:35:05", "garbage")
	if !errors.Is(err, ErrInvalidDate) || !strings.Contains(err.Error(), "invalid date") {
		t.Fatalf("expected invalid date error, got %v", err)
	}

	_, err = ToDate("2024:13:45 15:35:05", "")
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected invalid date for month 13, got %v", err)
	}
}

func checkString(t *testing.T, field string, got *string, want string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s is nil, want %q", field, want)
	}
	if *got != want {
		t.Fatalf("%s = %q, want %q", field, *got, want)
	}
}
