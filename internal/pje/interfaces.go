package pje

import (
	"context"
	"io"
)

// CaptchaSolver returns best-guess text for a raw captcha image. The
// answer may be wrong; the challenge resolver drives the retry loop.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// Authenticator performs the browser-driven login for one region and
// hands back the credential bundle for the region's API client.
type Authenticator interface {
	Authenticate(ctx context.Context, regionKey string) (*Session, error)
}

// ProcessStore persists resolved process documents keyed by number.
type ProcessStore interface {
	SaveProcess(ctx context.Context, entry CachedEntry) error
	GetProcess(ctx context.Context, processNumber string) (CachedEntry, error)
}

// BlobStore writes binary attachments to durable storage. AppendObject
// uploads one chunk of a larger object; backends without native append
// support return an error and the download pipeline falls back to a
// single PutObject of the whole file.
type BlobStore interface {
	AppendObject(ctx context.Context, path string, chunk []byte, totalSize int64) error
	PutObject(ctx context.Context, path string, contentType string, r io.Reader, size int64) (string, error)
}

// Publisher pushes per-process completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
