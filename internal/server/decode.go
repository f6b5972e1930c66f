package server

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
	"github.com/kubilitics/kubilitics-copilot/pkg/types"
)

// maxDecodedBytes bounds a single decompressed file.
const maxDecodedBytes = 32 << 20

var errDecodedTooLarge = errors.New("decoded file exceeds size limit")

// DecodeFiles turns uploaded payloads into text, preserving order. A payload
// that is not base64 of a gzip stream decodes to empty text; invalid UTF-8
// sequences are dropped.
func DecodeFiles(payloads []types.FilePayload, logger *zap.Logger) []models.DecodedFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	files := make([]models.DecodedFile, len(payloads))
	for i, p := range payloads {
		text, err := decodeContent(p.Content)
		if err != nil {
			logger.Debug("file decode failed",
				zap.String("reason", "decode_failed"),
				zap.String("filename", p.Filename),
				zap.Error(err),
			)
			text = ""
		}
		files[i] = models.DecodedFile{Name: p.Filename, Text: text}
	}
	return files
}

func decodeContent(content string) (string, error) {
	compressed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
	if err != nil {
		return "", fmt.Errorf("base64: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(io.LimitReader(zr, maxDecodedBytes+1))
	if err != nil {
		return "", fmt.Errorf("gzip: %w", err)
	}
	if len(raw) > maxDecodedBytes {
		return "", errDecodedTooLarge
	}
	return strings.ToValidUTF8(string(raw), ""), nil
}

// EncodeContent is the inverse of the decode step, used by clients and tests.
func EncodeContent(text string) string {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(text))
	_ = zw.Close()
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
