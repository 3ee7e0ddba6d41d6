package ingestion

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/pkg/logger"
)

// Downloader baixa exports publicados por URL (http/https) para um diretório local.
type Downloader struct {
	httpClient *http.Client
	outputDir  string
}

func NewDownloader(outputDir string, timeout time.Duration) *Downloader {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		outputDir:  outputDir,
	}
}

// IsRemote indica se o caminho é uma URL http(s).
func IsRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// localName mantém a extensão da URL, usada por ParsePath para escolher o leitor.
func localName(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	name := hex.EncodeToString(sum[:8])

	ext := ".csv"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = strings.ToLower(e)
		}
	}
	return name + ext
}

func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	outputPath := filepath.Join(d.outputDir, localName(rawURL))

	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return "", fmt.Errorf("erro ao criar diretório: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("erro ao criar request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("erro ao fazer download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status code: %d para URL: %s", resp.StatusCode, rawURL)
	}

	tempFile := outputPath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("erro ao criar arquivo: %w", err)
	}

	written, err := io.Copy(file, resp.Body)
	file.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("erro ao salvar arquivo: %w", err)
	}

	if err := os.Rename(tempFile, outputPath); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("erro ao renomear arquivo: %w", err)
	}

	logger.Info("export baixado",
		zap.String("url", rawURL),
		zap.String("path", outputPath),
		zap.Int64("bytes", written))

	return outputPath, nil
}
