package analyze

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yourusername/policy-reader/internal/extract"
)

const (
	fileKindPDF  = "pdf"
	fileKindDOCX = "docx"

	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeZIP  = "application/zip"
)

type storedFile struct {
	path         string
	originalName string
	kind         string
	size         int64
	pages        int
}

func toJobFiles(stored []storedFile) []JobFile {
	files := make([]JobFile, len(stored))
	for i, sf := range stored {
		files[i] = JobFile{
			StoredName:   filepath.Base(sf.path),
			OriginalName: sf.originalName,
			Kind:         sf.kind,
			Size:         sf.size,
			Pages:        sf.pages,
		}
	}
	return files
}

func storedFilesFromManifest(jobDir string, manifest *JobManifest) []storedFile {
	if manifest == nil {
		return nil
	}
	stored := make([]storedFile, len(manifest.Files))
	for i, f := range manifest.Files {
		stored[i] = storedFile{
			path:         filepath.Join(jobDir, "in", f.StoredName),
			originalName: f.OriginalName,
			kind:         f.Kind,
			size:         f.Size,
			pages:        f.Pages,
		}
	}
	return stored
}

// storeUploads はアップロードされたファイルをワークスペースに保存します。
// 受け付けるのは PDF・DOCX・PDFを束ねたZIP で、種別は拡張子ではなく
// 内容のシグネチャで判定します。
func (s *Service) storeUploads(ctx context.Context, files []*multipart.FileHeader, inDir string) ([]storedFile, error) {
	var stored []storedFile
	for _, header := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.cfg.MaxFileSize > 0 && header.Size > s.cfg.MaxFileSize {
			return nil, newError("LIMIT_EXCEEDED",
				fmt.Sprintf("%s のサイズが上限（%dMB）を超えています。", header.Filename, s.cfg.MaxFileSize/(1024*1024)), nil)
		}

		path := filepath.Join(inDir, fmt.Sprintf("upload-%03d", len(stored)))
		if err := saveMultipartFile(header, path); err != nil {
			return nil, err
		}

		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, fmt.Errorf("ファイル種別の判定に失敗しました: %w", err)
		}

		switch {
		case mtype.Is(mimePDF):
			sf, err := s.finalizePDF(path, header.Filename, len(stored))
			if err != nil {
				return nil, err
			}
			stored = append(stored, sf)
		case mtype.Is(mimeDOCX):
			sf, err := finalizeDOCX(path, header.Filename, header.Size, len(stored))
			if err != nil {
				return nil, err
			}
			stored = append(stored, sf)
		case mtype.Is(mimeZIP):
			extracted, err := s.extractZipPDFs(path, inDir, len(stored))
			if err != nil {
				return nil, err
			}
			if len(extracted) == 0 {
				return nil, newError("INVALID_INPUT",
					fmt.Sprintf("%s にPDFファイルが含まれていません。", header.Filename), nil)
			}
			stored = append(stored, extracted...)
		default:
			_ = os.Remove(path)
			return nil, newError("INVALID_INPUT",
				fmt.Sprintf("%s は対応していない形式です（PDF・DOCX・ZIPのみ）。", header.Filename), nil)
		}
	}
	return stored, nil
}

func (s *Service) finalizePDF(path, originalName string, index int) (storedFile, error) {
	pages, err := extract.PDFPageCount(path)
	if err != nil {
		_ = os.Remove(path)
		return storedFile{}, newError("UNSUPPORTED_DOCUMENT",
			fmt.Sprintf("%s を読み取れませんでした。破損していないPDFを指定してください。", originalName), err)
	}
	if s.cfg.MaxPages > 0 && pages > s.cfg.MaxPages {
		_ = os.Remove(path)
		return storedFile{}, newError("LIMIT_EXCEEDED",
			fmt.Sprintf("%s のページ数（%d）が上限（%d）を超えています。", originalName, pages, s.cfg.MaxPages), nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		return storedFile{}, fmt.Errorf("保存済みファイルの確認に失敗しました: %w", err)
	}
	final := filepath.Join(filepath.Dir(path), fmt.Sprintf("doc-%03d.pdf", index))
	if err := os.Rename(path, final); err != nil {
		return storedFile{}, fmt.Errorf("保存済みファイルの確定に失敗しました: %w", err)
	}
	return storedFile{
		path:         final,
		originalName: originalName,
		kind:         fileKindPDF,
		size:         info.Size(),
		pages:        pages,
	}, nil
}

func finalizeDOCX(path, originalName string, size int64, index int) (storedFile, error) {
	final := filepath.Join(filepath.Dir(path), fmt.Sprintf("doc-%03d.docx", index))
	if err := os.Rename(path, final); err != nil {
		return storedFile{}, fmt.Errorf("保存済みファイルの確定に失敗しました: %w", err)
	}
	// DOCXはページ数の概念を持たないため1ページ扱い
	return storedFile{
		path:         final,
		originalName: originalName,
		kind:         fileKindDOCX,
		size:         size,
		pages:        1,
	}, nil
}

// extractZipPDFs はZIPに含まれるPDFをワークスペースへ展開します。
// ディレクトリ構造は無視し、ファイル名のベース部分だけを使います。
func (s *Service) extractZipPDFs(zipPath, inDir string, startIndex int) ([]storedFile, error) {
	defer os.Remove(zipPath)

	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, newError("INVALID_INPUT", "ZIPファイルを開けませんでした。", err)
	}
	defer archive.Close()

	var stored []storedFile
	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(entry.Name)
		if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		if s.cfg.MaxFileSize > 0 && int64(entry.UncompressedSize64) > s.cfg.MaxFileSize {
			return nil, newError("LIMIT_EXCEEDED",
				fmt.Sprintf("%s のサイズが上限を超えています。", name), nil)
		}

		path := filepath.Join(inDir, fmt.Sprintf("upload-%03d", startIndex+len(stored)))
		if err := extractZipEntry(entry, path); err != nil {
			return nil, err
		}
		sf, err := s.finalizePDF(path, name, startIndex+len(stored))
		if err != nil {
			return nil, err
		}
		stored = append(stored, sf)
	}
	return stored, nil
}

func extractZipEntry(entry *zip.File, path string) error {
	reader, err := entry.Open()
	if err != nil {
		return fmt.Errorf("ZIPエントリのオープンに失敗しました: %w", err)
	}
	defer reader.Close()

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("展開先ファイルの作成に失敗しました: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("ZIPエントリの展開に失敗しました: %w", err)
	}
	return nil
}

func saveMultipartFile(header *multipart.FileHeader, path string) error {
	src, err := header.Open()
	if err != nil {
		return fmt.Errorf("アップロードファイルのオープンに失敗しました: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("アップロードファイルの保存に失敗しました: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("アップロードファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}
