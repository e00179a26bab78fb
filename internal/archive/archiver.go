package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
)

// Archiver periodically rotates the live append-only JSONL files
// internal/archive.Writer produces into dated gzip files, deleting the
// oldest archives when total size exceeds maxBytes. Grounded on the
// teacher's Archiver.Run/cycle/rotate shape, retargeted from a
// Mongo-trades pull to a local-file rotation, with S3 offload newly
// wired (spec.md §6 "Persisted state", SUPPLEMENTED FEATURES "Archive
// offload to S3 (opt-in)").
type Archiver struct {
	liveDir  string // where Writer appends *.jsonl
	outDir   string // where rotated *.jsonl.gz files live
	maxBytes int64
	interval time.Duration
	maxAge   time.Duration

	s3 *s3Offload
}

type s3Offload struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates a new Archiver. maxGB bounds the total size of rotated
// archive files kept on disk; afterHours is the live-file age at which
// a rotation is triggered.
func New(liveDir, outDir string, maxGB, intervalHours, afterHours int) *Archiver {
	return &Archiver{
		liveDir:  liveDir,
		outDir:   outDir,
		maxBytes: int64(maxGB) * 1 << 30,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
	}
}

// EnableS3 configures optional S3 offload. Call before Run.
func (a *Archiver) EnableS3(ctx context.Context, bucket, region, prefix string) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return fmt.Errorf("archive: load aws config: %w", err)
	}
	a.s3 = &s3Offload{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}
	return nil
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("archiver: live=%s out=%s max=%s interval=%v age=%v",
		a.liveDir, a.outDir, humanize.Bytes(uint64(a.maxBytes)), a.interval, a.maxAge)

	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	rotated, err := a.rotateStale()
	if err != nil {
		log.Printf("archiver: rotate: %v", err)
	}
	for _, path := range rotated {
		if a.s3 != nil {
			if err := a.upload(ctx, path); err != nil {
				log.Printf("archiver: s3 upload %s: %v", path, err)
				continue
			}
			if err := os.Remove(path); err != nil {
				log.Printf("archiver: remove uploaded %s: %v", path, err)
			}
		}
	}
	a.prune()
}

// rotateStale gzips every live *.jsonl file last modified before
// a.maxAge ago into outDir/<symbol>/<kind>/<date>.jsonl.gz, then
// truncates the live file. Returns the paths of newly written
// archives.
func (a *Archiver) rotateStale() ([]string, error) {
	cutoff := time.Now().Add(-a.maxAge)
	var rotated []string

	err := filepath.Walk(a.liveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		if info.ModTime().After(cutoff) || info.Size() == 0 {
			return nil
		}

		rel, err := filepath.Rel(a.liveDir, path)
		if err != nil {
			return err
		}
		day := time.Now().UTC().Format("2006-01-02")
		outPath := filepath.Join(a.outDir, strings.TrimSuffix(rel, ".jsonl"), day+".jsonl.gz")

		if err := gzipAppend(path, outPath); err != nil {
			return err
		}
		if err := os.Truncate(path, 0); err != nil {
			return fmt.Errorf("truncate %s: %w", path, err)
		}

		log.Printf("archiver: rotated %s into %s", rel, outPath)
		rotated = append(rotated, outPath)
		return nil
	})
	return rotated, err
}

func gzipAppend(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dstPath), err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		return fmt.Errorf("gzip %s: %w", srcPath, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close %s: %w", srcPath, err)
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", dstPath, err)
	}
	defer dst.Close()
	if _, err := dst.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", dstPath, err)
	}
	return nil
}

func (a *Archiver) upload(ctx context.Context, path string) error {
	rel, err := filepath.Rel(a.outDir, path)
	if err != nil {
		return err
	}
	key := a.s3.prefix + "/" + filepath.ToSlash(rel)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	_, err = a.s3.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.s3.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	log.Printf("archiver: uploaded %s to s3://%s/%s", path, a.s3.bucket, key)
	return nil
}

// prune deletes the oldest rotated archive files until total size is
// under maxBytes.
func (a *Archiver) prune() {
	type entry struct {
		path string
		size int64
	}

	var files []entry
	var total int64

	filepath.Walk(a.outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.maxBytes {
		return
	}

	// Archive paths end in .../<date>.jsonl.gz, so lexicographic sort
	// on the full path orders oldest-first within each symbol/kind dir.
	sort.Slice(files, func(i, j int) bool {
		return files[i].path < files[j].path
	})

	for _, f := range files {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("archiver: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("archiver: rotated out %s (%s)", f.path, humanize.Bytes(uint64(f.size)))
	}
}
