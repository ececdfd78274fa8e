// Package download streams attachment bodies into blob storage.
package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/crawjud/pje-pipeline/internal/pje"
	"github.com/crawjud/pje-pipeline/internal/progress"
)

// DefaultChunkSize is the read/append granularity for streamed bodies.
const DefaultChunkSize = 8 << 20 // 8 MiB

// Config controls the download pipeline.
type Config struct {
	// ChunkSize is the size of each streamed append (default 8 MiB).
	ChunkSize int
	// TempDir is where spooled copies are written (default os.TempDir).
	TempDir string
}

// Pipeline copies attachment bodies chunk by chunk into a BlobStore,
// spooling a local temp copy so the whole file can be re-uploaded in one
// shot when incremental appends fail partway.
type Pipeline struct {
	blobs    pje.BlobStore
	reporter progress.Emitter
	logger   *zap.Logger
	cfg      Config
}

// New creates a download pipeline over the given blob store.
func New(blobs pje.BlobStore, reporter progress.Emitter, logger *zap.Logger, cfg Config) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{blobs: blobs, reporter: reporter, logger: logger, cfg: cfg}
}

// DownloadAndStore streams body into storage under destPath. Appends stop
// at the first failure; when no chunk was appended at all, the spooled
// copy is uploaded whole as a fallback. Storage failures never propagate
// to the caller, and the completion message is emitted regardless.
func (p *Pipeline) DownloadAndStore(ctx context.Context, pid string, row int, destPath string, body io.Reader, totalSize int64) {
	defer p.emit(pid, row, progress.TypeLog, "arquivo baixado com sucesso!")

	tmp, err := os.CreateTemp(p.cfg.TempDir, "pje-download-*"+filepath.Ext(destPath))
	if err != nil {
		p.logger.Warn("failed to create temp file for download",
			zap.String("dest", destPath), zap.Error(err))
		p.emit(pid, row, progress.TypeWarning, "não foi possível salvar o arquivo do processo")
		return
	}
	tmpName := tmp.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove temp file",
				zap.String("path", tmpName), zap.Error(err))
		}
	}()

	uploaded, appendFailed := p.streamChunks(ctx, destPath, tmp, body, totalSize, pid, row)

	if !uploaded {
		p.uploadWhole(ctx, destPath, tmp, pid, row)
	} else if appendFailed {
		p.logger.Warn("append stream ended early, stored object is truncated",
			zap.String("dest", destPath))
	}

	if err := tmp.Close(); err != nil {
		p.logger.Warn("failed to close temp file", zap.String("path", tmpName), zap.Error(err))
	}
}

// streamChunks reads body chunk by chunk, spooling every chunk to tmp and
// appending it to storage until the first append failure. It reports
// whether at least one chunk was appended and whether an append failed.
func (p *Pipeline) streamChunks(ctx context.Context, destPath string, tmp *os.File, body io.Reader, totalSize int64, pid string, row int) (uploaded, appendFailed bool) {
	buf := make([]byte, p.cfg.ChunkSize)
	for {
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := tmp.Write(chunk); err != nil {
				p.logger.Warn("failed to spool chunk to temp file",
					zap.String("dest", destPath), zap.Error(err))
				p.emit(pid, row, progress.TypeWarning, "não foi possível salvar o arquivo do processo")
				return uploaded, appendFailed
			}
			if !appendFailed {
				if err := p.blobs.AppendObject(ctx, destPath, chunk, totalSize); err != nil {
					appendFailed = true
					p.logger.Warn("chunk append failed, will fall back to whole-file upload if nothing was appended",
						zap.String("dest", destPath), zap.Error(err))
					p.emit(pid, row, progress.TypeWarning,
						"falha ao enviar parte do arquivo para o armazenamento")
				} else {
					uploaded = true
				}
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return uploaded, appendFailed
		}
		if readErr != nil {
			p.logger.Warn("failed reading download stream",
				zap.String("dest", destPath), zap.Error(readErr))
			p.emit(pid, row, progress.TypeWarning, "falha ao ler o conteúdo do arquivo")
			return uploaded, appendFailed
		}
	}
}

// uploadWhole rewinds the spooled copy and uploads it in a single call.
func (p *Pipeline) uploadWhole(ctx context.Context, destPath string, tmp *os.File, pid string, row int) {
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		p.logger.Warn("failed to rewind temp file for fallback upload",
			zap.String("dest", destPath), zap.Error(err))
		p.emit(pid, row, progress.TypeWarning, "não foi possível salvar o arquivo do processo")
		return
	}
	info, err := tmp.Stat()
	if err != nil {
		p.logger.Warn("failed to stat temp file for fallback upload",
			zap.String("dest", destPath), zap.Error(err))
		p.emit(pid, row, progress.TypeWarning, "não foi possível salvar o arquivo do processo")
		return
	}
	uri, err := p.blobs.PutObject(ctx, destPath, "application/pdf", tmp, info.Size())
	if err != nil {
		p.logger.Warn("fallback whole-file upload failed",
			zap.String("dest", destPath), zap.Error(err))
		p.emit(pid, row, progress.TypeWarning, "não foi possível salvar o arquivo do processo")
		return
	}
	p.logger.Debug("stored attachment via whole-file upload",
		zap.String("dest", destPath), zap.String("uri", uri), zap.Int64("size", info.Size()))
}

func (p *Pipeline) emit(pid string, row int, typ progress.Type, msg string) {
	if p.reporter == nil {
		return
	}
	p.reporter.Emit(progress.NewEvent(pid, row, typ, msg))
}

// DestPath builds the canonical storage path for a process attachment.
func DestPath(pid, processNumber string) string {
	return fmt.Sprintf("%s/%s.pdf", pid, processNumber)
}
