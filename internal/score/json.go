package score

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// strictJSON rejects unknown fields so malformed editor payloads fail
// loudly instead of silently losing data.
var strictJSON = jsoniter.Config{DisallowUnknownFields: true}.Froze()

var canonicalJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeStrict parses a score document, rejecting unknown fields.
func DecodeStrict(data []byte) (*Score, error) {
	var s Score
	if err := strictJSON.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode score: %w", err)
	}
	return &s, nil
}

// EncodeCanonical serializes a score in its stable wire form. Two equal
// normalized scores produce byte-identical output.
func EncodeCanonical(s *Score) ([]byte, error) {
	data, err := canonicalJSON.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode score: %w", err)
	}
	return data, nil
}
