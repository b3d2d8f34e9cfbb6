package redis

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/poiesic/ragpilot/core"
)

// documentFields flattens a document and its embedding into the hash
// layout expected by the index schema. Zero-valued metadata fields are
// omitted so chunks without source columns stay lean.
func documentFields(doc core.Document, vector []float32) map[string]interface{} {
	fields := map[string]interface{}{
		"content":        doc.Content,
		"content_vector": vectorBytes(vector),
	}

	ref := doc.Reference
	if ref.Title != "" {
		fields["title"] = ref.Title
	}
	if ref.Genre != "" {
		fields["genre"] = ref.Genre
	}
	if ref.Country != "" {
		fields["country"] = ref.Country
	}
	if ref.Revenue != 0 {
		fields["revenue"] = ref.Revenue
	}
	if ref.Score != 0 {
		fields["score"] = ref.Score
	}
	if ref.Date != 0 {
		fields["date"] = ref.Date
	}
	return fields
}

// parseDocument converts a search result hash back into a document.
// The similarity score is derived from the reported cosine distance.
func parseDocument(key string, fields map[string]string) core.Document {
	doc := core.Document{
		ID:      referenceID(key),
		Content: fields["content"],
		Reference: core.Reference{
			Title:   strings.TrimSpace(fields["title"]),
			Genre:   fields["genre"],
			Country: fields["country"],
		},
	}

	if v, err := strconv.ParseFloat(fields["revenue"], 64); err == nil {
		doc.Reference.Revenue = v
	}
	if v, err := strconv.ParseFloat(fields["score"], 64); err == nil {
		doc.Reference.Score = v
	}
	if v, err := strconv.ParseInt(fields["date"], 10, 64); err == nil {
		doc.Reference.Date = v
	}
	if v, err := strconv.ParseFloat(fields["vector_score"], 64); err == nil {
		doc.Score = 1 - v
	}
	return doc
}

// referenceID strips the index prefix from a document key, leaving the
// stable content-hash id used for reference maps.
func referenceID(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// vectorBytes encodes a float32 vector into the little-endian byte layout
// RediSearch expects for FLOAT32 vector fields.
func vectorBytes(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
