package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"hiring-agent-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadResumeFile 上传候选人的原始简历文件，返回对象键
	UploadResumeFile(ctx context.Context, processID, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error)

	// GetResumeFile 下载简历文件
	GetResumeFile(ctx context.Context, objectName string) ([]byte, error)

	// GetPresignedURL 获取预签名URL
	GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)

	// DeleteFile 删除文件
	DeleteFile(ctx context.Context, objectName string) error

	// DeleteProcessFiles 删除某流程下的全部简历文件
	DeleteProcessFiles(ctx context.Context, processID string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client        *minio.Client
	cfg           *config.MinIOConfig
	resumesBucket string
	logger        *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	resumesBucket := cfg.ResumesBucket
	if resumesBucket == "" {
		resumesBucket = "resumes"
	}

	m := &MinIO{
		client:        client,
		cfg:           cfg,
		resumesBucket: resumesBucket,
		logger:        logger,
	}

	if err := m.ensureBucketExists(resumesBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", resumesBucket, err)
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created successfully.", bucketName)
	}
	return nil
}

// UploadResumeFile 上传候选人的原始简历文件
// 对象键格式: {processID}/{candidateID}{fileExt}，同一候选人重复提交直接覆盖
func (m *MinIO) UploadResumeFile(ctx context.Context, processID, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	objectName := fmt.Sprintf("%s/%s%s", processID, candidateID, fileExt)

	contentType := "application/octet-stream"
	if fileExt == ".pdf" {
		contentType = "application/pdf"
	}

	_, err := m.client.PutObject(ctx, m.resumesBucket, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传简历文件失败: %w", err)
	}

	m.logger.Printf("[MinIO] Uploaded resume: bucket=%s, object=%s, size=%d", m.resumesBucket, objectName, fileSize)
	return objectName, nil
}

// GetResumeFile 下载简历文件
func (m *MinIO) GetResumeFile(ctx context.Context, objectName string) ([]byte, error) {
	object, err := m.client.GetObject(ctx, m.resumesBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取简历文件 %s 失败: %w", objectName, err)
	}
	defer object.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, object); err != nil {
		return nil, fmt.Errorf("读取简历文件 %s 失败: %w", objectName, err)
	}
	return buf.Bytes(), nil
}

// GetPresignedURL 获取简历文件的预签名URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.resumesBucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}
	return u.String(), nil
}

// DeleteFile 删除简历文件
func (m *MinIO) DeleteFile(ctx context.Context, objectName string) error {
	err := m.client.RemoveObject(ctx, m.resumesBucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除文件 %s 失败: %w", objectName, err)
	}
	return nil
}

// DeleteProcessFiles 删除某流程下的全部简历文件
// 对象键以 {processID}/ 为前缀，流程删除时调用
func (m *MinIO) DeleteProcessFiles(ctx context.Context, processID string) error {
	prefix := processID + "/"
	count := 0
	for object := range m.client.ListObjects(ctx, m.resumesBucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return fmt.Errorf("列举流程 %s 的简历文件失败: %w", processID, object.Err)
		}
		if err := m.DeleteFile(ctx, object.Key); err != nil {
			return err
		}
		count++
	}
	m.logger.Printf("[MinIO] Deleted %d resume file(s) under prefix %s", count, prefix)
	return nil
}
