package telegram

import (
	"context"
	"fmt"
	"os"

	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/skobkin/courier/internal/domain"
)

// Uploader stores local files with gotd's chunked uploader.
type Uploader struct {
	up *uploader.Uploader
}

func NewUploader(api *tg.Client, threads int) *Uploader {
	up := uploader.NewUploader(api)
	if threads > 0 {
		up = up.WithThreads(threads)
	}
	return &Uploader{up: up}
}

func (u *Uploader) Upload(ctx context.Context, path string, kind domain.ResourceType) (*domain.UploadedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", kind, err)
	}
	f, err := u.up.FromPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", kind, classify(err))
	}
	out := uploadedFile(f)
	if out == nil {
		return nil, fmt.Errorf("upload %s: unexpected input file %T", kind, f)
	}
	out.Size = info.Size()
	return out, nil
}

func uploadedFile(f tg.InputFileClass) *domain.UploadedFile {
	switch v := f.(type) {
	case *tg.InputFile:
		return &domain.UploadedFile{ID: v.ID, Parts: v.Parts, Name: v.Name, MD5: v.MD5Checksum}
	case *tg.InputFileBig:
		return &domain.UploadedFile{ID: v.ID, Parts: v.Parts, Name: v.Name, Big: true}
	default:
		return nil
	}
}
