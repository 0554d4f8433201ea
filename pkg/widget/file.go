package widget

import (
	"encoding/base64"
	"fmt"
)

// File is the stored value of a file widget.
// File values are compared by identity, never by content.
type File struct {
	Name string `json:"name"`
	MIME string `json:"mime,omitempty"`
	Size int64  `json:"size"`
	Data []byte `json:"data,omitempty"`
}

// NewFile wraps a payload into a File.
func NewFile(name, mime string, data []byte) *File {
	return &File{Name: name, MIME: mime, Size: int64(len(data)), Data: data}
}

// fileFromRecord builds a File from its wire shape
// {"name", "mime", "data" (base64 string or bytes)}.
func fileFromRecord(rec map[string]any) (*File, error) {
	f := &File{}
	f.Name, _ = rec["name"].(string)
	f.MIME, _ = rec["mime"].(string)
	switch data := rec["data"].(type) {
	case []byte:
		f.Data = data
	case string:
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("file data: %w", err)
		}
		f.Data = raw
	case nil:
	default:
		return nil, fmt.Errorf("file data: unsupported type %T", data)
	}
	f.Size = int64(len(f.Data))
	return f, nil
}
