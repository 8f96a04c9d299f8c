// Package manifest defines the JSON documents staged between pipeline stages.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Granule is a Query→Explode work item: one source granule to explode.
type Granule struct {
	InputGranulePath string `json:"input_granule_path"`
	OutputBucket     string `json:"output_granule_s3bucket"`
	Prefix           string `json:"prefix"`
	CollectionName   string `json:"collection_name"`
}

// Batch is an Explode→Write work item: a contiguous run of points.
type Batch struct {
	InputRows      Table  `json:"input_rows"`
	OutputBucket   string `json:"output_granule_s3bucket"`
	CollectionName string `json:"collection_name"`
}

// Point is a Write→next-stage work item: one persisted point artifact.
type Point struct {
	InputS3Path    string `json:"input_s3path"`
	CollectionName string `json:"collection_name"`
	OutputS3Bucket string `json:"output_s3bucket"`
}

// Encode writes v as indented JSON.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Decode reads one JSON document into v. Numbers inside loosely typed
// fields, such as the cells of a Table, are kept as json.Number.
func Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("cannot decode manifest: %w", err)
	}
	return nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(b []byte, v any) error {
	return Decode(bytes.NewReader(b), v)
}
