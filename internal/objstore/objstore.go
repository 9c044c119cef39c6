// Package objstore はS3互換オブジェクトストレージへのアセット保存を提供する。
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// allowedExtensions はアップロードで許可する画像拡張子と
// 対応するContent-Type。リストに無い拡張子はjpg扱いとする。
var allowedExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// defaultExtension は拡張子が判定できない場合のフォールバック。
const defaultExtension = "jpg"

// Uploader はオブジェクトストレージへのアップロードを行う。
// 認証情報が未設定の場合は無効状態となり、Uploadは呼び出せない。
type Uploader struct {
	client   *minio.Client
	bucket   string
	endpoint string
}

// New はUploaderの新しいインスタンスを生成する。
// endpointが空の場合はnil（無効）を返す。呼び出し側はEnabledで判定する。
func New(endpoint, accessKey, secretKey, bucket string) (*Uploader, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	secure := true
	host := endpoint
	if strings.HasPrefix(endpoint, "http://") {
		secure = false
		host = strings.TrimPrefix(endpoint, "http://")
	} else {
		host = strings.TrimPrefix(endpoint, "https://")
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("オブジェクトストレージクライアントの作成に失敗しました: %w", err)
	}

	return &Uploader{
		client:   client,
		bucket:   bucket,
		endpoint: host,
	}, nil
}

// Enabled はアップロードが利用可能かを返す。nilレシーバ安全。
func (u *Uploader) Enabled() bool {
	return u != nil && u.client != nil
}

// Owns は指定URLがこのストレージ上のオブジェクトを指しているかを返す。
// 再アップロードの要否判定に使用する。nilレシーバ安全。
func (u *Uploader) Owns(rawURL string) bool {
	if !u.Enabled() {
		return false
	}
	return strings.HasPrefix(rawURL, fmt.Sprintf("https://%s/%s/", u.endpoint, u.bucket))
}

// Upload はデータをcollection/{id}.{ext}のキーで保存し、公開URLを返す。
// extはsourceURLのパスから決定し、許可リスト外の場合はjpgにフォールバックする。
func (u *Uploader) Upload(ctx context.Context, collection, id, sourceURL string, data []byte) (string, error) {
	if !u.Enabled() {
		return "", fmt.Errorf("オブジェクトストレージが未設定です")
	}

	ext := ExtensionFor(sourceURL)
	key := fmt.Sprintf("%s/%s.%s", collection, id, ext)

	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: allowedExtensions[ext],
	})
	if err != nil {
		return "", fmt.Errorf("オブジェクトのアップロードに失敗しました: %w", err)
	}

	return fmt.Sprintf("https://%s/%s/%s", u.endpoint, u.bucket, key), nil
}

// UploadFile はローカルファイルを指定キーでそのまま保存し、公開URLを返す。
// データベースバックアップなど画像以外のオブジェクトの保存に使用する。
func (u *Uploader) UploadFile(ctx context.Context, key, filePath, contentType string) (string, error) {
	if !u.Enabled() {
		return "", fmt.Errorf("オブジェクトストレージが未設定です")
	}

	_, err := u.client.FPutObject(ctx, u.bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("ファイルのアップロードに失敗しました: %w", err)
	}

	return fmt.Sprintf("https://%s/%s/%s", u.endpoint, u.bucket, key), nil
}

// ExtensionFor はURLのパスから保存用の拡張子を決定する。
// クエリ文字列は無視し、許可リスト外の拡張子はjpgにフォールバックする。
func ExtensionFor(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return defaultExtension
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(parsed.Path), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return defaultExtension
	}
	return ext
}
