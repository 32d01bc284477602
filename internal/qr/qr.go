// Package qr turns login codes into browser-displayable images.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const pngSize = 256

// DataURL encodes the given login code as a PNG QR image wrapped in a
// data URL, ready to drop into an <img> src attribute.
func DataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, pngSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
