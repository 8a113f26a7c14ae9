package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/yourusername/stockmeta/models"
)

const (
	// CreatorTool is written to xmp:CreatorTool.
	CreatorTool = "StockMeta"

	intellectualGenre = "Stock Photography"
	xmpPacketBegin    = "<?xpacket begin=\"\uFEFF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n"
	xmpPacketEnd      = "\n<?xpacket end=\"w\"?>"
	xmpDateLayout     = "2006-01-02T15:04:05.000Z"
)

// 29 bytes including the trailing NUL.
var xmpIdentifier = []byte("http://ns.adobe.com/xap/1.0/\x00")

var xmpRegex = regexp.MustCompile(`(?is)<x:xmpmeta[\s\S]*?</x:xmpmeta>`)

// GenerateXMPContent renders md as an <x:xmpmeta> RDF/XML document. The
// result is usable as-is for a .xmp sidecar. renderedAt becomes both
// xmp:CreateDate and xmp:ModifyDate.
func GenerateXMPContent(md models.ImageMetadata, renderedAt time.Time) string {
	stamp := renderedAt.UTC().Format(xmpDateLayout)

	var b strings.Builder
	b.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="` + CreatorTool + `">` + "\n")
	b.WriteString(` <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` + "\n")
	b.WriteString(`  <rdf:Description rdf:about=""` + "\n")
	b.WriteString(`    xmlns:dc="http://purl.org/dc/elements/1.1/"` + "\n")
	b.WriteString(`    xmlns:photoshop="http://ns.adobe.com/photoshop/1.0/"` + "\n")
	b.WriteString(`    xmlns:xmp="http://ns.adobe.com/xap/1.0/"` + "\n")
	b.WriteString(`    xmlns:Iptc4xmpCore="http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/">` + "\n")

	if md.Title != "" {
		writeAlt(&b, "dc:title", md.Title)
	}
	if md.Description != "" {
		writeAlt(&b, "dc:description", md.Description)
	}
	if kw := md.UsableKeywords(); len(kw) > 0 {
		writeList(&b, "dc:subject", "rdf:Bag", kw)
	}
	if md.Author != "" {
		writeList(&b, "dc:creator", "rdf:Seq", []string{md.Author})
	}
	if md.Copyright != "" {
		writeAlt(&b, "dc:rights", md.Copyright)
	}
	if md.Title != "" {
		writeSimple(&b, "photoshop:Headline", md.Title)
	}
	writeSimple(&b, "xmp:CreatorTool", CreatorTool)
	writeSimple(&b, "xmp:CreateDate", stamp)
	writeSimple(&b, "xmp:ModifyDate", stamp)
	writeSimple(&b, "Iptc4xmpCore:IntellectualGenre", intellectualGenre)

	b.WriteString("  </rdf:Description>\n")
	b.WriteString(" </rdf:RDF>\n")
	b.WriteString("</x:xmpmeta>")
	return b.String()
}

func writeSimple(b *strings.Builder, name, value string) {
	b.WriteString("   <" + name + ">" + xmlText(value) + "</" + name + ">\n")
}

func writeAlt(b *strings.Builder, name, value string) {
	b.WriteString("   <" + name + ">\n")
	b.WriteString("    <rdf:Alt>\n")
	b.WriteString(`     <rdf:li xml:lang="x-default">` + xmlText(value) + "</rdf:li>\n")
	b.WriteString("    </rdf:Alt>\n")
	b.WriteString("   </" + name + ">\n")
}

func writeList(b *strings.Builder, name, container string, values []string) {
	b.WriteString("   <" + name + ">\n")
	b.WriteString("    <" + container + ">\n")
	for _, v := range values {
		b.WriteString("     <rdf:li>" + xmlText(v) + "</rdf:li>\n")
	}
	b.WriteString("    </" + container + ">\n")
	b.WriteString("   </" + name + ">\n")
}

// BuildXMPSegment wraps the XMP document in an xpacket and frames it as an
// APP1 segment. It returns nil when md has nothing to embed, and nil rather
// than a truncated packet when the segment would not fit the APP1 length
// field.
func BuildXMPSegment(md models.ImageMetadata, renderedAt time.Time) []byte {
	if !md.HasContent() {
		return nil
	}
	packet := xmpPacketBegin + GenerateXMPContent(md, renderedAt) + xmpPacketEnd
	return buildAPP1Segment(xmpIdentifier, []byte(packet))
}

// ExtractXMPXML scans data for an XMP packet and returns its XML bytes if found.
func ExtractXMPXML(data []byte) []byte {
	m := xmpRegex.Find(data)
	if len(m) > 0 {
		return m
	}
	return nil
}
