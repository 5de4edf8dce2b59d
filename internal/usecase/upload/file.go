package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	domain "loan-submission-queue/internal/domain/upload"

	"github.com/disintegration/imaging"
)

const (
	MaxFileSize = 10 << 20

	qualityStart = 100
	qualityStep  = 5
	qualityFloor = 5
)

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

func isImage(path string) bool { return strings.HasPrefix(contentTypeOf(path), "image/") }

func contentTypeOf(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// validateFile checks extension and size before anything touches the network.
func validateFile(path string) (os.FileInfo, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := contentTypes[ext]; !ok {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("Unsupported file type %q (allowed: jpg, jpeg, png, pdf)", ext)}
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.ValidationError{Reason: "File not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, &domain.ValidationError{Reason: "File not found"}
	}
	if info.Size() > MaxFileSize {
		return nil, &domain.ValidationError{Reason: "File size exceeds 10MB limit"}
	}
	return info, nil
}

// compressImage re-encodes src as JPEG, lowering quality by qualityStep from
// qualityStart until the output fits target or qualityFloor is reached.
func compressImage(src string, target int64) ([]byte, int, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	q := qualityStart
	for {
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, 0, fmt.Errorf("encode jpeg q=%d: %w", q, err)
		}
		if int64(buf.Len()) <= target || q-qualityStep < qualityFloor {
			return buf.Bytes(), q, nil
		}
		q -= qualityStep
	}
}

func jpgName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}
