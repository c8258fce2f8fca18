package output

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
)

type fakePutObject struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_UploadOnClose(t *testing.T) {
	client := &fakePutObject{}
	cfg := S3Config{Bucket: "archive", Region: "us-east-1", Prefix: "ranges/", SpoolDir: t.TempDir()}

	sink, err := newS3Sink(context.Background(), cfg, CompressionSnappy, client, logging.Nop(), metrics.NewCollector())
	if err != nil {
		t.Fatalf("newS3Sink() error = %v", err)
	}
	sink.now = func() time.Time { return time.Date(2024, 3, 5, 7, 30, 0, 0, time.UTC) }

	data := "1700000000 first\n1700000060 second\n"
	if _, err := sink.Write([]byte(data)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if client.input != nil {
		t.Fatal("uploaded before Close")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := aws.ToString(client.input.Key); got != "ranges/2024/03/05/07/1709623800.log.snappy" {
		t.Errorf("key = %q", got)
	}
	if got := aws.ToString(client.input.ContentEncoding); got != "snappy" {
		t.Errorf("content encoding = %q, want snappy", got)
	}

	r, err := NewDecompressReader(bytes.NewReader(client.body), CompressionSnappy)
	if err != nil {
		t.Fatalf("NewDecompressReader() error = %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != data {
		t.Errorf("uploaded body = %q, want %q", got, data)
	}
}

func TestS3Sink_UploadFailure(t *testing.T) {
	client := &fakePutObject{err: errors.New("access denied")}
	cfg := S3Config{Bucket: "archive", Region: "us-east-1", SpoolDir: t.TempDir()}

	sink, err := newS3Sink(context.Background(), cfg, CompressionNone, client, logging.Nop(), metrics.NewCollector())
	if err != nil {
		t.Fatalf("newS3Sink() error = %v", err)
	}
	sink.Write([]byte("x\n"))
	if err := sink.Close(); err == nil {
		t.Error("expected upload error")
	}
}

func TestS3Sink_GenerateKey(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 30, 9, 0, time.UTC)

	tests := []struct {
		name        string
		template    string
		prefix      string
		compression CompressionType
		want        string
	}{
		{"default", "", "", CompressionNone, "2024/03/05/07/1709623809.log"},
		{"custom", "{{.Year}}-{{.Month}}-{{.Day}}T{{.Hour}}{{.Minute}}{{.Second}}.txt", "p/", CompressionNone, "p/2024-03-05T073009.txt"},
		{"gzip", "range", "", CompressionGzip, "range.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3Sink{config: S3Config{KeyTemplate: tt.template, Prefix: tt.prefix}, compression: tt.compression}
			if got := s.generateKey(ts); got != tt.want {
				t.Errorf("generateKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
