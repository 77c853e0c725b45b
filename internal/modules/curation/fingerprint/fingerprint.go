package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/bits"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/yungbote/curator-backend/internal/normalization"
)

// ContentHash is the strong fingerprint: sha256 over normalized text and raw
// media bytes. Identical normalized content always hashes the same; empty
// input yields "".
func ContentHash(text string, media []byte) string {
	norm := normalization.Text(text)
	if norm == "" && len(media) == 0 {
		return ""
	}
	h := sha256.New()
	_, _ = h.Write([]byte("t:"))
	_, _ = h.Write([]byte(norm))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("m:"))
	_, _ = h.Write(media)
	return hex.EncodeToString(h.Sum(nil))
}

const (
	dhashW = 9
	dhashH = 8
)

// DHash is a 64-bit difference hash: the image is scaled to 9x8 grayscale
// and each bit records whether a pixel is brighter than its right neighbour.
func DHash(img image.Image) uint64 {
	if img == nil || img.Bounds().Empty() {
		return 0
	}
	small := image.NewGray(image.Rect(0, 0, dhashW, dhashH))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := 0
	for y := 0; y < dhashH; y++ {
		for x := 0; x < dhashW-1; x++ {
			left := small.GrayAt(x, y).Y
			right := small.GrayAt(x+1, y).Y
			if left > right {
				hash |= 1 << uint(63-bit)
			}
			bit++
		}
	}
	return hash
}

// PerceptualHash decodes r (png, jpeg, gif or webp) and returns its dHash as
// 16 hex characters.
func PerceptualHash(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return FormatHash(DHash(img)), nil
}

func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

func ParseHash(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "0x")
	if len(s) != 16 {
		return 0, fmt.Errorf("perceptual hash must be 16 hex chars, got %d", len(s))
	}
	return strconv.ParseUint(s, 16, 64)
}

// Similarity is 1 - hamming(a,b)/64.
func Similarity(a, b uint64) float64 {
	return 1 - float64(bits.OnesCount64(a^b))/64
}
