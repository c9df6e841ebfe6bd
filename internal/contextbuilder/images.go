package contextbuilder

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"

	"github.com/coreclaw/agentcore/internal/providers"
)

// ImageConfig controls the Context Builder's vision pipeline: whether
// inbound media gets embedded at all, how aggressively it gets downsized,
// and which provider (if any) is asked to caption each image up front.
type ImageConfig struct {
	Enabled  bool
	MaxSize  int // longest edge in pixels after resize
	MaxBytes int // compressed size ceiling before quality is cut further
	Quality  int // starting JPEG quality, 1-100
}

func DefaultImageConfig() ImageConfig {
	return ImageConfig{Enabled: true, MaxSize: 1568, MaxBytes: 5 * 1024 * 1024, Quality: 85}
}

// processedImage is one inbound image after resize/compress, ready to embed
// as a providers.ImageContent and, optionally, preceded by a caption.
type processedImage struct {
	Caption string
	Content providers.ImageContent
}

// prepareImages decodes each path, resizes it to fit within cfg.MaxSize on
// its longest edge (preserving aspect ratio), re-encodes as JPEG, and walks
// the quality down by 10 (floor 10) until the encoded size is under
// cfg.MaxBytes. Unreadable or undecodable files are skipped with a warning,
// not an error, since one bad attachment shouldn't fail the whole turn.
func prepareImages(ctx context.Context, paths []string, cfg ImageConfig, captioner providers.Provider) []processedImage {
	if !cfg.Enabled || len(paths) == 0 {
		return nil
	}
	var out []processedImage
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("context builder: failed to read image", "path", p, "error", err)
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			slog.Warn("context builder: failed to decode image", "path", p, "error", err)
			continue
		}

		b := img.Bounds()
		if b.Dx() > cfg.MaxSize || b.Dy() > cfg.MaxSize {
			img = imaging.Fit(img, cfg.MaxSize, cfg.MaxSize, imaging.Lanczos)
		}

		encoded, err := compressJPEG(img, cfg.Quality, cfg.MaxBytes)
		if err != nil {
			slog.Warn("context builder: failed to encode image", "path", p, "error", err)
			continue
		}

		pi := processedImage{Content: providers.ImageContent{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(encoded),
		}}
		if captioner != nil {
			pi.Caption = captionImage(ctx, captioner, pi.Content)
		}
		out = append(out, pi)
	}
	return out
}

// compressJPEG encodes img at quality, stepping down by 10 (never below 10)
// until the result fits under maxBytes or quality bottoms out.
func compressJPEG(img image.Image, quality, maxBytes int) ([]byte, error) {
	if quality <= 0 {
		quality = 85
	}
	for q := quality; ; q -= 10 {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, err
		}
		if buf.Len() <= maxBytes || q <= 10 {
			return buf.Bytes(), nil
		}
	}
}

// captionImage asks a vision-capable provider to describe one already-
// processed image. Failures degrade to no caption rather than aborting the
// turn — the raw image part still reaches the model.
func captionImage(ctx context.Context, provider providers.Provider, img providers.ImageContent) string {
	prompt := "Describe this image in one or two plain sentences."
	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "user", Content: &prompt, Images: []providers.ImageContent{img}},
		},
		MaxTokens: 200,
	})
	if err != nil {
		slog.Warn("context builder: vision caption failed", "error", err)
		return ""
	}
	return resp.Content
}

func dataURL(img providers.ImageContent) string {
	return fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data)
}
