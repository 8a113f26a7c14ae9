package services

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/dsoprea/go-exif/v3"
	"github.com/yourusername/stockmeta/models"
)

// IFD0 tags written by BuildExifSegment.
const (
	TagImageDescription uint16 = 0x010E
	TagArtist           uint16 = 0x013B
	TagCopyright        uint16 = 0x8298
	TagXPTitle          uint16 = 0x9C9B
	TagXPComment        uint16 = 0x9C9C
	TagXPKeywords       uint16 = 0x9C9E
	TagXPSubject        uint16 = 0x9C9F
)

const (
	tiffTypeByte  uint16 = 1
	tiffTypeASCII uint16 = 2

	ifdEntrySize     = 12
	xpSubjectMaxUnit = 250
	keywordSeparator = "; "
)

var (
	exifIdentifier = []byte("Exif\x00\x00")
	// Big-endian TIFF header, first IFD at offset 8.
	tiffHeader = []byte{0x4D, 0x4D, 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08}
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// BuildExifSegment returns a complete APP1 "Exif\0\0" segment carrying the
// Windows XP* fields and ImageDescription for md. It returns nil when md has
// nothing to embed or when the segment would not fit the APP1 length field;
// callers treat nil as "omit this segment".
func BuildExifSegment(md models.ImageMetadata) []byte {
	entries := exifEntries(md)
	if len(entries) == 0 {
		return nil
	}
	return buildAPP1Segment(exifIdentifier, buildTIFF(entries))
}

func exifEntries(md models.ImageMetadata) []ifdEntry {
	if !md.HasContent() {
		return nil
	}
	var entries []ifdEntry
	addBytes := func(tag uint16, v []byte) {
		entries = append(entries, ifdEntry{tag: tag, typ: tiffTypeByte, count: uint32(len(v)), value: v})
	}
	addASCII := func(tag uint16, s string) {
		v := asciiValue(s)
		entries = append(entries, ifdEntry{tag: tag, typ: tiffTypeASCII, count: uint32(len(v)), value: v})
	}

	if md.Title != "" {
		addBytes(TagXPTitle, EncodeUTF16LE(md.Title))
	}
	if md.Description != "" {
		addBytes(TagXPComment, EncodeUTF16LE(md.Description))
		subject := truncateUnits(utf16.Encode([]rune(md.Description)), xpSubjectMaxUnit)
		addBytes(TagXPSubject, encodeUnitsLE(subject))
		addASCII(TagImageDescription, md.Description)
	}
	if kw := md.UsableKeywords(); len(kw) > 0 {
		addBytes(TagXPKeywords, EncodeUTF16LE(strings.Join(kw, keywordSeparator)))
	}
	if md.Author != "" {
		addASCII(TagArtist, md.Author)
	}
	if md.Copyright != "" {
		addASCII(TagCopyright, md.Copyright)
	}

	// IFD entries must be in ascending tag order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })
	return entries
}

// asciiValue is s as NUL-terminated bytes. Tab, CR and LF become spaces and
// every other control byte is dropped. Non-ASCII text stays UTF-8, which is
// what most readers expect in practice.
func asciiValue(s string) []byte {
	v := make([]byte, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\t' || c == '\n' || c == '\r':
			v = append(v, ' ')
		case c < 0x20 || c == 0x7F:
		default:
			v = append(v, c)
		}
	}
	return append(v, 0)
}

// buildTIFF lays out header, a single IFD and its value area. Values of up
// to four bytes live in the entry itself; longer ones go after the IFD, each
// padded to an even length, and the entry holds their offset from the start
// of the TIFF header.
func buildTIFF(entries []ifdEntry) []byte {
	tableLen := 2 + ifdEntrySize*len(entries) + 4
	valueBase := len(tiffHeader) + tableLen

	buf := make([]byte, valueBase)
	copy(buf, tiffHeader)
	binary.BigEndian.PutUint16(buf[8:], uint16(len(entries)))

	var values []byte
	for i, e := range entries {
		p := len(tiffHeader) + 2 + ifdEntrySize*i
		binary.BigEndian.PutUint16(buf[p:], e.tag)
		binary.BigEndian.PutUint16(buf[p+2:], e.typ)
		binary.BigEndian.PutUint32(buf[p+4:], e.count)
		if len(e.value) <= 4 {
			copy(buf[p+8:p+12], e.value)
			continue
		}
		binary.BigEndian.PutUint32(buf[p+8:], uint32(valueBase+len(values)))
		values = append(values, e.value...)
		if len(values)%2 == 1 {
			values = append(values, 0)
		}
	}
	// The next-IFD pointer stays zero: there is no IFD1.
	return append(buf, values...)
}

// ExifTag is a flattened EXIF entry read back from an image.
type ExifTag struct {
	IfdPath   string `json:"ifd"`
	TagID     uint16 `json:"tag_id"`
	TagName   string `json:"tag"`
	TypeName  string `json:"type"`
	UnitCount uint32 `json:"count"`
	Formatted string `json:"value"`
}

// ReadExifTags locates the first EXIF block in data and returns its tags.
// A source without EXIF yields an empty list and no error.
func ReadExifTags(data []byte) ([]ExifTag, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return []ExifTag{}, nil
		}
		return nil, fmt.Errorf("failed to locate exif: %w", err)
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read exif: %w", err)
	}
	tags := make([]ExifTag, 0, len(entries))
	for _, e := range entries {
		tags = append(tags, ExifTag{
			IfdPath:   e.IfdPath,
			TagID:     e.TagId,
			TagName:   e.TagName,
			TypeName:  e.TagTypeName,
			UnitCount: e.UnitCount,
			Formatted: e.Formatted,
		})
	}
	return tags, nil
}

// ExtractExifJSON returns a JSON object of tag name to formatted value, or
// JSON null when the data carries no readable EXIF.
func ExtractExifJSON(data []byte) json.RawMessage {
	tags, err := ReadExifTags(data)
	if err != nil || len(tags) == 0 {
		return json.RawMessage("null")
	}
	m := map[string]interface{}{}
	for _, t := range tags {
		key := t.TagName
		if _, exists := m[key]; exists {
			key = key + "_dup"
		}
		m[key] = t.Formatted
	}
	b, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
