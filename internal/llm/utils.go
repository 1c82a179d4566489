package llm

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/YorickdeJong/energy-contracts/constants"
)

// IsImage reports whether path is sent inline as an image rather than uploaded as a file.
func IsImage(path string) bool {
	switch constants.NormalizeExt(filepath.Ext(path)) {
	case "jpg", "jpeg", "png":
		return true
	}
	return false
}

// ReadAsDataURL base64-encodes a file as a data: URL using the whitelisted content type.
func ReadAsDataURL(path string) (string, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	mt := constants.MimeTypeFor(filepath.Ext(path))
	if mt == "" {
		mt = "application/octet-stream"
	}
	data := base64.StdEncoding.EncodeToString(b)
	return "data:" + mt + ";base64," + data, mt, nil
}
