package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/pkg/cli"
	"github.com/switchctl/switchctl/pkg/logger"
)

// Capture 一次轮询的原始回显归档单元
type Capture struct {
	ID      string
	Device  string
	At      time.Time
	Outputs [][2]string
}

// StoredObject 归档结果
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// Archiver 原始回显归档
type Archiver interface {
	Store(ctx context.Context, c Capture) (StoredObject, error)
}

// NewArchiver 按配置创建归档器；backend 为 none 时返回 nil
func NewArchiver(cfg config.StorageConfig) Archiver {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "local":
		return &LocalArchiver{baseDir: cfg.Local.BaseDir, prefix: cfg.Prefix}
	case "minio":
		return &DelegatingArchiver{
			primary:  newMinioArchiver(cfg),
			fallback: &LocalArchiver{baseDir: cfg.Local.BaseDir, prefix: cfg.Prefix},
		}
	default:
		return nil
	}
}

// DelegatingArchiver MinIO 优先，失败回退到本地
type DelegatingArchiver struct {
	primary  *MinioArchiver
	fallback *LocalArchiver
}

// Store 写入归档
func (a *DelegatingArchiver) Store(ctx context.Context, c Capture) (StoredObject, error) {
	if a.primary == nil {
		logger.Warn("MinIO archive selected but client not initialized; falling back to local")
		return a.fallback.Store(ctx, c)
	}
	obj, err := a.primary.Store(ctx, c)
	if err == nil {
		return obj, nil
	}
	logger.Warnf("MinIO archive failed, falling back to local: %v", err)
	objLocal, lerr := a.fallback.Store(ctx, c)
	if lerr != nil {
		return StoredObject{}, fmt.Errorf("minio archive failed: %v; local fallback failed: %w", err, lerr)
	}
	return objLocal, nil
}

// LocalArchiver 写入本地目录
type LocalArchiver struct {
	baseDir string
	prefix  string
}

// NewLocalArchiver 创建本地归档器
func NewLocalArchiver(baseDir, prefix string) *LocalArchiver {
	return &LocalArchiver{baseDir: baseDir, prefix: prefix}
}

// Store 写入 baseDir/prefix/device/YYYYMMDD/HHMMSS_id.txt
func (a *LocalArchiver) Store(ctx context.Context, c Capture) (StoredObject, error) {
	base := strings.TrimSpace(a.baseDir)
	if base == "" {
		base = "./data/captures"
	}
	rel := objectName(a.prefix, c)
	full := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
	}
	data := renderCapture(c)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	return storedObject("file://"+full, data), nil
}

// MinioArchiver 写入 MinIO 对象存储
type MinioArchiver struct {
	client        *minio.Client
	endpoint      string
	bucket        string
	prefix        string
	bucketEnsured bool
}

func newMinioArchiver(cfg config.StorageConfig) *MinioArchiver {
	host := strings.TrimSpace(cfg.Minio.Host)
	if host == "" || cfg.Minio.Port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, cfg.Minio.Port)
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure:    cfg.Minio.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Errorf("MinIO client initialization failed: %v", err)
		return nil
	}
	return &MinioArchiver{
		client:   client,
		endpoint: endpoint,
		bucket:   strings.TrimSpace(cfg.Minio.Bucket),
		prefix:   cfg.Prefix,
	}
}

// Store 上传归档对象，带有限重试
func (a *MinioArchiver) Store(ctx context.Context, c Capture) (StoredObject, error) {
	if a.bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}
	if !a.bucketEnsured {
		if err := a.ensureBucket(ctx); err != nil {
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		a.bucketEnsured = true
	}

	name := objectName(a.prefix, c)
	data := renderCapture(c)
	var lastErr error
	for _, wait := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := a.client.PutObject(attemptCtx, a.bucket, name, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
		cancel()
		if err == nil {
			return storedObject("minio://"+path.Join(a.bucket, name), data), nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return StoredObject{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
}

func (a *MinioArchiver) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "|", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}

func objectName(prefix string, c Capture) string {
	parts := []string{}
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, slug(c.Device), c.At.Format("20060102"))
	file := c.At.Format("150405")
	if c.ID != "" {
		file += "_" + c.ID
	}
	return path.Join(append(parts, file+".txt")...)
}

// renderCapture 聚合所有命令回显，去除分页提示行
func renderCapture(c Capture) []byte {
	var buf bytes.Buffer
	for _, kv := range c.Outputs {
		fmt.Fprintf(&buf, "### %s\n", kv[0])
		for _, line := range strings.Split(strings.ReplaceAll(kv[1], "\r", ""), "\n") {
			if strings.Contains(line, cli.TermMore) {
				continue
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func storedObject(uri string, data []byte) StoredObject {
	sum := sha256.Sum256(data)
	return StoredObject{
		URI:         uri,
		Size:        int64(len(data)),
		Checksum:    "sha256:" + hex.EncodeToString(sum[:]),
		ContentType: "text/plain; charset=utf-8",
	}
}
