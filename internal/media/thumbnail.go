package media

import (
	"fmt"
	"image"
	_ "image/gif" // register decoders
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

const (
	ThumbnailSize = 320
	MaxPhotoSide  = 1280
	jpegQuality   = 87
)

// Imager writes resized JPEG copies of images into a scratch directory.
type Imager struct {
	dir string
}

func NewImager(dir string) (*Imager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "courier-media")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create media scratch dir: %w", err)
	}
	return &Imager{dir: dir}, nil
}

func (im *Imager) Dir() string {
	return im.dir
}

// Thumbnail scales src down to fit a ThumbnailSize square.
func (im *Imager) Thumbnail(src string) (string, error) {
	img, err := decodeImage(src)
	if err != nil {
		return "", err
	}
	return im.writeJPEG(resize.Thumbnail(ThumbnailSize, ThumbnailSize, img, resize.Lanczos3), "thumb")
}

// FitPhoto returns src unchanged when it already fits MaxPhotoSide, and a
// downscaled copy otherwise. Files that are not decodable images are
// returned as they are.
func (im *Imager) FitPhoto(src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open photo: %w", err)
	}
	cfg, _, err := image.DecodeConfig(f)
	_ = f.Close()
	if err != nil {
		return src, nil
	}
	if cfg.Width <= MaxPhotoSide && cfg.Height <= MaxPhotoSide {
		return src, nil
	}
	img, err := decodeImage(src)
	if err != nil {
		return "", err
	}
	return im.writeJPEG(resize.Thumbnail(MaxPhotoSide, MaxPhotoSide, img, resize.Lanczos3), "photo")
}

func (im *Imager) writeJPEG(img image.Image, prefix string) (string, error) {
	dst := filepath.Join(im.dir, prefix+"_"+uuid.NewString()+".jpg")
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", prefix, err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("encode %s: %w", prefix, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", prefix, err)
	}
	return dst, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
