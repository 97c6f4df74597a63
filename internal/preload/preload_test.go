package preload

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/sitedrop/internal/cryptoutil"
)

type fakeSSM struct {
	value string
	err   error
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)},
	}, nil
}

type fakeS3 struct {
	objects map[string][]byte
	gotKeys []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.gotKeys = append(f.gotKeys, key)
	data, ok := f.objects[key]
	if !ok {
		return nil, &noSuchKeyError{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

type noSuchKeyError struct{}

func (*noSuchKeyError) Error() string { return "NoSuchKey" }

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func newTestLoader(t *testing.T, siteDir string, fssm SSMAPI, fs3 S3API) *Loader {
	t.Helper()
	l, err := NewLoader(context.Background(), Options{
		SSMParam: "/sitedrop/current-hash",
		S3Bucket: "site-archives",
		S3Prefix: "bundles",
		SiteDir:  siteDir,
		SSM:      fssm,
		S3:       fs3,
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return l
}

func TestNewLoader_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewLoader(ctx, Options{S3Bucket: "b", SiteDir: "d", SSM: &fakeSSM{}, S3: &fakeS3{}}); err == nil {
		t.Error("expected error without SSMParam")
	}
	if _, err := NewLoader(ctx, Options{SSMParam: "p", SiteDir: "d", SSM: &fakeSSM{}, S3: &fakeS3{}}); err == nil {
		t.Error("expected error without S3Bucket")
	}
	if _, err := NewLoader(ctx, Options{SSMParam: "p", S3Bucket: "b", SSM: &fakeSSM{}, S3: &fakeS3{}}); err == nil {
		t.Error("expected error without SiteDir")
	}
}

func TestLoad_ExtractsIntoSiteDir(t *testing.T) {
	siteDir := t.TempDir()

	payload := buildZip(t, map[string]string{
		"index.html": "<html>seeded</html>",
		"css/a.css":  "body{}",
	})
	hash := cryptoutil.SHA256Hex(payload)

	fs3 := &fakeS3{objects: map[string][]byte{
		"bundles/" + hash + ".zip": payload,
	}}
	l := newTestLoader(t, siteDir, &fakeSSM{value: hash}, fs3)

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(siteDir, "index.html"))
	if err != nil {
		t.Fatalf("index.html not extracted: %v", err)
	}
	if string(got) != "<html>seeded</html>" {
		t.Fatalf("content = %q", got)
	}
	if len(fs3.gotKeys) != 1 || fs3.gotKeys[0] != "bundles/"+hash+".zip" {
		t.Fatalf("requested keys = %v", fs3.gotKeys)
	}
}

func TestLoad_OverwritesExistingContent(t *testing.T) {
	siteDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(siteDir, "index.html"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	payload := buildZip(t, map[string]string{"index.html": "fresh"})
	hash := cryptoutil.SHA256Hex(payload)

	l := newTestLoader(t, siteDir, &fakeSSM{value: hash}, &fakeS3{objects: map[string][]byte{
		"bundles/" + hash + ".zip": payload,
	}})

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(siteDir, "index.html"))
	if string(got) != "fresh" {
		t.Fatalf("content = %q, want fresh", got)
	}
}

func TestLoad_ChecksumMismatch(t *testing.T) {
	siteDir := t.TempDir()

	payload := buildZip(t, map[string]string{"index.html": "x"})
	wrongHash := cryptoutil.SHA256Hex([]byte("something else"))

	l := newTestLoader(t, siteDir, &fakeSSM{value: wrongHash}, &fakeS3{objects: map[string][]byte{
		"bundles/" + wrongHash + ".zip": payload,
	}})

	err := l.Load(context.Background())
	if err == nil {
		t.Fatal("expected checksum mismatch error")
	}
	if !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("error = %v", err)
	}
	if _, serr := os.Stat(filepath.Join(siteDir, "index.html")); !os.IsNotExist(serr) {
		t.Fatal("mismatched archive must not be extracted")
	}
}

func TestLoad_MissingObject(t *testing.T) {
	payload := buildZip(t, map[string]string{"index.html": "x"})
	hash := cryptoutil.SHA256Hex(payload)

	l := newTestLoader(t, t.TempDir(), &fakeSSM{value: hash}, &fakeS3{})

	if err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for missing S3 object")
	}
}

func TestS3Key_NoPrefix(t *testing.T) {
	l, err := NewLoader(context.Background(), Options{
		SSMParam: "p",
		S3Bucket: "b",
		SiteDir:  t.TempDir(),
		SSM:      &fakeSSM{},
		S3:       &fakeS3{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := l.s3Key("abc"); got != "abc.zip" {
		t.Fatalf("s3Key = %q", got)
	}
}

func TestFetchCurrentArchiveHash_TrimsWhitespace(t *testing.T) {
	l := newTestLoader(t, t.TempDir(), &fakeSSM{value: "  deadbeef\n"}, &fakeS3{})

	hash, err := l.FetchCurrentArchiveHash(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentArchiveHash: %v", err)
	}
	if hash != "deadbeef" {
		t.Fatalf("hash = %q", hash)
	}
}
