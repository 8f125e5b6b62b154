package store

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"

	"github.com/local/docsmith/internal/fingerprint"
)

const gcmMagic = "GCM3NCR0"

// S3Store keeps artifacts in an S3 bucket under
// <prefix>/<stage>/<fingerprint>.<ext>. When a passphrase is set, artifact
// bodies are encrypted at rest with AES-GCM using a PBKDF2-derived key.
// S3 PUTs of a full body are atomic, so the first-write-wins contract holds
// without coordination.
type S3Store struct {
	client     *s3.Client
	bucket     string
	prefix     string
	passphrase string
}

// NewS3Store builds a store from the ambient AWS configuration.
func NewS3Store(ctx context.Context, bucket, prefix, passphrase string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 store: empty bucket")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 store: load AWS config: %w", err)
	}
	return &S3Store{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		prefix:     prefix,
		passphrase: passphrase,
	}, nil
}

func (s *S3Store) artifactKey(stage Stage, fp fingerprint.ID) string {
	key := fmt.Sprintf("%s/%s.%s", stage, fp, stage.Ext())
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

func (s *S3Store) logKey(stage Stage, fp fingerprint.ID) string {
	key := fmt.Sprintf("logs/%s_%s.log", stage, fp)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

// Get downloads and, if needed, decrypts the artifact. A missing key is a
// miss, not an error.
func (s *S3Store) Get(ctx context.Context, stage Stage, fp fingerprint.ID) ([]byte, bool, error) {
	key := s.artifactKey(stage, fp)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, &IOError{Op: "get", Stage: stage, Fingerprint: fp, Cause: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, &IOError{Op: "get", Stage: stage, Fingerprint: fp, Cause: err}
	}
	data, err := s.decrypt(body)
	if err != nil {
		return nil, false, &IOError{Op: "get", Stage: stage, Fingerprint: fp, Cause: err}
	}
	return data, true, nil
}

// Put uploads the artifact unless the key already exists.
func (s *S3Store) Put(ctx context.Context, stage Stage, fp fingerprint.ID, data []byte) error {
	key := s.artifactKey(stage, fp)
	exists, err := s.exists(ctx, key)
	if err != nil {
		return &IOError{Op: "put", Stage: stage, Fingerprint: fp, Cause: err}
	}
	if exists {
		log.Debug().Str("stage", string(stage)).Str("fingerprint", string(fp)).Msg("artifact already cached, skipping upload")
		return nil
	}
	if err := s.upload(ctx, key, data, true); err != nil {
		return &IOError{Op: "put", Stage: stage, Fingerprint: fp, Cause: err}
	}
	return nil
}

// PutLog uploads the run log sidecar. Logs are stored in the clear and
// overwrite on re-run.
func (s *S3Store) PutLog(ctx context.Context, stage Stage, fp fingerprint.ID, logData []byte) error {
	if err := s.upload(ctx, s.logKey(stage, fp), logData, false); err != nil {
		return &IOError{Op: "putlog", Stage: stage, Fingerprint: fp, Cause: err}
	}
	return nil
}

func (s *S3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) upload(ctx context.Context, key string, data []byte, encrypt bool) error {
	body := data
	meta := map[string]string{"encrypted": "false"}
	if encrypt && s.passphrase != "" {
		enc, err := s.encryptGCM(data)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		body = enc
		meta["encrypted"] = "true"
		meta["encryption-format"] = gcmMagic
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// encryptGCM produces magic(8) + salt(16) + nonce(12) + ciphertext+tag.
func (s *S3Store) encryptGCM(data []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(s.passphrase), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// decrypt unwraps a GCM-encrypted body by its magic prefix. Bodies without
// the prefix are returned as-is so unencrypted buckets keep working.
func (s *S3Store) decrypt(body []byte) ([]byte, error) {
	if len(body) < len(gcmMagic) || string(body[:len(gcmMagic)]) != gcmMagic {
		return body, nil
	}
	if s.passphrase == "" {
		return nil, fmt.Errorf("artifact is encrypted but no passphrase is configured")
	}
	if len(body) < 8+16+12+16 {
		return nil, fmt.Errorf("encrypted body too short: %d bytes", len(body))
	}
	salt := body[8:24]
	nonce := body[24:36]
	ciphertext := body[36:]

	key := pbkdf2.Key([]byte(s.passphrase), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}
