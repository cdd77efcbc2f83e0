package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
)

// BackupConfig is intentionally separate from the main app config: backups
// usually run from a different host or cron context.
type BackupConfig struct {
	HistoryFile     string `envconfig:"REPOST_HISTORY_FILE" default:"repost_history.json"`
	OutputDir       string `envconfig:"OUTPUT_DIR" default:"./output"`
	BackupBucket    string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	BackupEndpoint  string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	BackupAccessKey string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	BackupSecretKey string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	BackupRegion    string `envconfig:"BACKUP_S3_REGION" required:"true"`
	KeepBackups     int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

func main() {
	log.Println("Starting backup process...")

	var cfg BackupConfig
	err := envconfig.Process("", &cfg)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	s3Client, err := createS3Client(cfg)
	if err != nil {
		log.Fatalf("Error creating S3 client: %v", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")

	// The history file is the only durable state the worker owns; it is the
	// one file that must always be in the backup set.
	historyData, err := gzipFile(cfg.HistoryFile)
	if err != nil {
		log.Fatalf("Error reading history file: %v", err)
	}
	historyKey := fmt.Sprintf("backup-history-%s.json.gz", timestamp)
	if err := uploadToS3(s3Client, cfg, historyKey, historyData); err != nil {
		log.Fatalf("Error uploading history backup: %v", err)
	}
	log.Printf("History backup uploaded to s3://%s/%s", cfg.BackupBucket, historyKey)

	// Export artifacts are reports, not state; missing ones are fine.
	for _, name := range []string{"repost_calendar.json", "affiliate_report.md", "sample_repost.html"} {
		path := filepath.Join(cfg.OutputDir, name)
		data, err := gzipFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Printf("Skipping artifact %s: %v", name, err)
			continue
		}
		key := fmt.Sprintf("backup-artifact-%s-%s.gz", timestamp, name)
		if err := uploadToS3(s3Client, cfg, key, data); err != nil {
			log.Printf("Error uploading artifact %s: %v", name, err)
			continue
		}
		log.Printf("Artifact uploaded to s3://%s/%s", cfg.BackupBucket, key)
	}

	if err := rotateBackups(s3Client, cfg); err != nil {
		log.Fatalf("Error rotating old backups: %v", err)
	}

	log.Println("Backup process completed successfully.")
}

func gzipFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write(raw); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func createS3Client(cfg BackupConfig) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: cfg.BackupEndpoint,
		}, nil
	})

	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.BackupAccessKey, cfg.BackupSecretKey, "")),
		config.WithRegion(cfg.BackupRegion),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

func uploadToS3(client *s3.Client, cfg BackupConfig, key string, data []byte) error {
	_, err := client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(cfg.BackupBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// rotateBackups keeps the newest KeepBackups history backups and deletes the
// rest. Artifact backups rotate with the history backup they belong to.
func rotateBackups(client *s3.Client, cfg BackupConfig) error {
	output, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.BackupBucket),
		Prefix: aws.String("backup-history-"),
	})
	if err != nil {
		return err
	}

	if len(output.Contents) <= cfg.KeepBackups {
		log.Printf("Fewer than %d backups present, no rotation needed.", cfg.KeepBackups)
		return nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	for _, obj := range output.Contents[cfg.KeepBackups:] {
		log.Printf("Deleting old backup: %s", *obj.Key)
		if err := deleteByKey(client, cfg, *obj.Key); err != nil {
			log.Printf("Error deleting %s: %v", *obj.Key, err)
			continue
		}

		// backup-history-TIMESTAMP.json.gz -> TIMESTAMP
		stamp := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, "backup-history-"), ".json.gz")
		artifacts, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
			Bucket: aws.String(cfg.BackupBucket),
			Prefix: aws.String("backup-artifact-" + stamp),
		})
		if err != nil {
			log.Printf("Error listing artifacts for %s: %v", stamp, err)
			continue
		}
		for _, art := range artifacts.Contents {
			if err := deleteByKey(client, cfg, *art.Key); err != nil {
				log.Printf("Error deleting %s: %v", *art.Key, err)
			}
		}
	}

	return nil
}

func deleteByKey(client *s3.Client, cfg BackupConfig, key string) error {
	_, err := client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.BackupBucket),
		Key:    aws.String(key),
	})
	return err
}
