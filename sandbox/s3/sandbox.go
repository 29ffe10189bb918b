package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/mirrorfs/data"
	"github.com/mwantia/mirrorfs/sandbox"
)

const directoryContentType = "application/x-directory"

// S3Sandbox is a sandbox filesystem persisted in an S3 bucket. Files map
// directly to object keys; directories are zero-byte objects with a
// trailing slash and a directory content type. Only mutations made through
// this sandbox appear on the watch feed.
type S3Sandbox struct {
	mu   sync.RWMutex
	feed *sandbox.Feed

	client     *minio.Client
	bucketName string
}

func NewS3Sandbox(endpoint, bucketName, accessKey, secretKey string, useSsl bool) (*S3Sandbox, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSsl,
	})
	if err != nil {
		return nil, err
	}

	return &S3Sandbox{
		feed:       sandbox.NewFeed(),
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Name returns the identifier name defined for this backend.
func (*S3Sandbox) Name() string {
	return "s3"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (s3s *S3Sandbox) Open(ctx context.Context) error {
	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return err
	}

	if !exists {
		return data.ErrNotExist
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (s3s *S3Sandbox) Close(ctx context.Context) error {
	s3s.feed.Close()
	return nil
}

func (s3s *S3Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	s3s.mu.RLock()
	defer s3s.mu.RUnlock()

	info, err := s3s.client.StatObject(ctx, s3s.bucketName, path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, data.ErrNotExist
		}
		return nil, err
	}

	if isDirectoryObject(info.Key, info.ContentType) {
		return nil, data.ErrIsDirectory
	}

	object, err := s3s.client.GetObject(ctx, s3s.bucketName, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	return io.ReadAll(object)
}

func (s3s *S3Sandbox) WriteFile(ctx context.Context, path string, content []byte) error {
	if path == "" || strings.HasSuffix(path, "/") {
		return data.ErrInvalidPath
	}

	s3s.mu.Lock()

	exists := true
	_, err := s3s.client.StatObject(ctx, s3s.bucketName, path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			s3s.mu.Unlock()
			return err
		}
		exists = false
	}

	_, err = s3s.client.PutObject(ctx, s3s.bucketName, path,
		bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{})
	if err != nil {
		s3s.mu.Unlock()
		return err
	}

	kind := data.EventAddFile
	if exists {
		kind = data.EventChangeFile
	}
	s3s.mu.Unlock()

	s3s.feed.Publish(data.WatchEvent{
		Kind:    kind,
		Path:    sandbox.AbsolutePath(path),
		Payload: content,
	})

	return nil
}

func (s3s *S3Sandbox) MakeDirectory(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	s3s.mu.Lock()

	key := strings.TrimSuffix(path, "/") + "/"
	_, err := s3s.client.StatObject(ctx, s3s.bucketName, key, minio.StatObjectOptions{})
	if err == nil {
		s3s.mu.Unlock()
		return data.ErrExist
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		s3s.mu.Unlock()
		return err
	}

	_, err = s3s.client.PutObject(ctx, s3s.bucketName, key,
		bytes.NewReader([]byte{}), 0, minio.PutObjectOptions{
			ContentType: directoryContentType,
		})
	if err != nil {
		s3s.mu.Unlock()
		return err
	}
	s3s.mu.Unlock()

	s3s.feed.Publish(data.WatchEvent{
		Kind: data.EventAddDir,
		Path: sandbox.AbsolutePath(strings.TrimSuffix(path, "/")),
	})

	return nil
}

func (s3s *S3Sandbox) Remove(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	s3s.mu.Lock()

	key := path
	kind := data.EventRemoveFile

	_, err := s3s.client.StatObject(ctx, s3s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			s3s.mu.Unlock()
			return err
		}

		// Not a file object, retry as a directory marker
		key = strings.TrimSuffix(path, "/") + "/"
		_, err = s3s.client.StatObject(ctx, s3s.bucketName, key, minio.StatObjectOptions{})
		if err != nil {
			s3s.mu.Unlock()
			if minio.ToErrorResponse(err).Code == "NoSuchKey" {
				return data.ErrNotExist
			}
			return err
		}
		kind = data.EventRemoveDir
	}

	if kind == data.EventRemoveDir {
		// Remove everything below the directory marker
		objects := s3s.client.ListObjects(ctx, s3s.bucketName, minio.ListObjectsOptions{
			Prefix:    key,
			Recursive: true,
		})
		for object := range objects {
			if object.Err != nil {
				s3s.mu.Unlock()
				return object.Err
			}
			if err := s3s.client.RemoveObject(ctx, s3s.bucketName, object.Key,
				minio.RemoveObjectOptions{}); err != nil {
				s3s.mu.Unlock()
				return err
			}
		}
	} else {
		if err := s3s.client.RemoveObject(ctx, s3s.bucketName, key,
			minio.RemoveObjectOptions{}); err != nil {
			s3s.mu.Unlock()
			return err
		}
	}
	s3s.mu.Unlock()

	s3s.feed.Publish(data.WatchEvent{
		Kind: kind,
		Path: sandbox.AbsolutePath(strings.TrimSuffix(path, "/")),
	})

	return nil
}

// Watch streams change events, replaying current bucket contents first.
// The replay fetches every object body, so it is intended for the bounded
// project sizes a mirror realistically tracks.
func (s3s *S3Sandbox) Watch(ctx context.Context) (<-chan data.WatchEvent, error) {
	return sandbox.WatchFeed(ctx, s3s.feed, s3s.snapshot)
}

func (s3s *S3Sandbox) snapshot(ctx context.Context) ([]data.WatchEvent, error) {
	s3s.mu.RLock()
	defer s3s.mu.RUnlock()

	var events []data.WatchEvent

	objects := s3s.client.ListObjects(ctx, s3s.bucketName, minio.ListObjectsOptions{
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return nil, object.Err
		}

		if isDirectoryObject(object.Key, object.ContentType) {
			events = append(events, data.WatchEvent{
				Kind: data.EventAddDir,
				Path: sandbox.AbsolutePath(strings.TrimSuffix(object.Key, "/")),
			})
			continue
		}

		reader, err := s3s.client.GetObject(ctx, s3s.bucketName, object.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		payload, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return nil, err
		}

		events = append(events, data.WatchEvent{
			Kind:    data.EventAddFile,
			Path:    sandbox.AbsolutePath(object.Key),
			Payload: payload,
		})
	}

	return events, nil
}

func isDirectoryObject(key, contentType string) bool {
	return strings.HasSuffix(key, "/") || contentType == directoryContentType
}
