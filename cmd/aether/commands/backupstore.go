package commands

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/aether/blobstore"
	bminio "github.com/hupe1980/aether/blobstore/minio"
	bs3 "github.com/hupe1980/aether/blobstore/s3"
	"github.com/hupe1980/aether/internal/config"
)

// newBackupStore returns the configured backup store, or nil for none.
func newBackupStore(ctx context.Context, cfg config.Config) (blobstore.Store, error) {
	switch cfg.Backup {
	case config.BackupLocal:
		return blobstore.NewLocalStore(cfg.BackupDir), nil

	case config.BackupMinio:
		client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: cfg.MinioSSL,
		})
		if err != nil {
			return nil, err
		}
		store := bminio.NewStore(client, cfg.BackupBucket, cfg.BackupPrefix)
		if err := store.EnsureBucket(ctx, ""); err != nil {
			return nil, err
		}
		return store, nil

	case config.BackupS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return bs3.NewStore(awss3.NewFromConfig(awsCfg), cfg.BackupBucket, cfg.BackupPrefix), nil
	}
	return nil, nil
}
