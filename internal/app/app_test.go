package app

import (
	"bytes"
	"context"
	"io/fs"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"photobox/internal/box"
	"photobox/internal/config"
	"photobox/internal/scratch"
	"photobox/internal/testutil"
)

// aliceFingerprint is the SHA-256 of "0xabcAlicehello".
const aliceFingerprint = "198117e6b57bc526be2015b99f7c383003f079935c59459162986b0ad8ab02e4"

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewConfig("test-instance", dir)
	cfg.Dispatch.Type = "filesystem"
	cfg.Dispatch.FileSystem.OutboxDir = filepath.Join(dir, "outbox")
	cfg.Server.ShutdownTimeout = config.Duration{Duration: 5 * time.Second}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *PhotoboxApp {
	t.Helper()
	a, err := New(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func submission(t *testing.T, url string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("blockchainAccountAddress", "0xabc")
	mw.WriteField("nickname", "Alice")
	mw.WriteField("comment", "hello")
	fw, err := mw.CreateFormFile("file", "photo.jpg")
	if err != nil {
		t.Fatalf("creating file part: %v", err)
	}
	fw.Write([]byte("jpeg bytes"))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url+"/api/box", &body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// outboxFiles returns the delivered files ending in suffix, as paths
// relative to the outbox.
func outboxFiles(t *testing.T, cfg *config.Config, suffix string) []string {
	t.Helper()
	root := cfg.Dispatch.FileSystem.OutboxDir
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			rel, _ := filepath.Rel(root, path)
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking outbox: %v", err)
	}
	return found
}

func TestNew(t *testing.T) {
	t.Run("wires the pipeline end to end", func(t *testing.T) {
		cfg := newTestConfig(t)
		a := newTestApp(t, cfg)
		defer a.Close()

		srv := httptest.NewServer(a.Handler())
		defer srv.Close()

		resp, err := http.DefaultClient.Do(submission(t, srv.URL))
		if err != nil {
			t.Fatalf("POST /api/box error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		if zips := outboxFiles(t, cfg, ".zip"); len(zips) != 1 {
			t.Errorf("outbox archives = %v, want exactly one", zips)
		}

		ctx := context.Background()
		records, err := a.FindRecords(ctx, aliceFingerprint)
		if err != nil {
			t.Fatalf("FindRecords() error = %v", err)
		}
		if len(records) != 1 {
			t.Errorf("FindRecords() = %d records, want 1", len(records))
		}

		all, err := a.ListRecords(ctx, 0)
		if err != nil {
			t.Fatalf("ListRecords() error = %v", err)
		}
		if len(all) != 1 {
			t.Errorf("ListRecords() = %d records, want 1", len(all))
		}

		runs, err := a.GetHistory(ctx, 10)
		if err != nil {
			t.Fatalf("GetHistory() error = %v", err)
		}
		if len(runs) != 1 || runs[0].State != box.StateCompleted.String() {
			t.Errorf("GetHistory() = %+v, want one completed run", runs)
		}

		uploads, err := os.ReadDir(cfg.Scratch.ScratchDir)
		if err != nil {
			t.Fatalf("reading scratch dir: %v", err)
		}
		if len(uploads) != 0 {
			t.Errorf("scratch dir holds %d entries after the run, want 0", len(uploads))
		}
	})

	t.Run("records survive reopen", func(t *testing.T) {
		cfg := newTestConfig(t)
		a := newTestApp(t, cfg)

		srv := httptest.NewServer(a.Handler())
		resp, err := http.DefaultClient.Do(submission(t, srv.URL))
		if err != nil {
			t.Fatalf("POST /api/box error = %v", err)
		}
		resp.Body.Close()
		srv.Close()
		if err := a.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		reopened := newTestApp(t, cfg)
		defer reopened.Close()

		records, err := reopened.ListRecords(context.Background(), 0)
		if err != nil {
			t.Fatalf("ListRecords() error = %v", err)
		}
		if len(records) != 1 || records[0].Fingerprint != aliceFingerprint {
			t.Errorf("ListRecords() = %+v, want the earlier record", records)
		}
	})

	t.Run("rejects unknown database type", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Database.Type = "oracle"

		if _, err := New(context.Background(), cfg, "test"); err == nil {
			t.Fatal("New() expected error for unknown database type")
		}
	})

	t.Run("rejects smtp without envelope", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Dispatch.Type = "smtp"
		cfg.Dispatch.SMTP.Host = "smtp.example.com"

		if _, err := New(context.Background(), cfg, "test"); err == nil {
			t.Fatal("New() expected error for smtp without sender and recipient")
		}
	})

	t.Run("writes the log file", func(t *testing.T) {
		cfg := newTestConfig(t)
		a := newTestApp(t, cfg)
		a.Close()

		data, err := os.ReadFile(filepath.Join(cfg.LogDir, "photobox.log"))
		if err != nil {
			t.Fatalf("reading log: %v", err)
		}
		if !strings.Contains(string(data), "\ttest-instance/") {
			t.Errorf("log = %q, want lines tagged with the instance id", data)
		}
	})
}

func TestSweep(t *testing.T) {
	cfg := newTestConfig(t)

	leftover, err := scratch.NewFileSystemScratchArea(cfg.Scratch.ScratchDir, 1<<20, box.NewNopLogger())
	if err != nil {
		t.Fatalf("NewFileSystemScratchArea() error = %v", err)
	}
	for _, name := range []string{"photo.jpg", "hash.txt"} {
		if _, err := leftover.Stage("crashed-run", name, strings.NewReader("stale")); err != nil {
			t.Fatalf("Stage(%s) error = %v", name, err)
		}
	}
	if _, err := leftover.Stage("live-run", "photo.jpg", strings.NewReader("in flight")); err != nil {
		t.Fatalf("Stage(live-run) error = %v", err)
	}
	backdate(t, filepath.Join(cfg.Scratch.ScratchDir, "crashed-run"), time.Now().Add(-24*time.Hour))

	a := newTestApp(t, cfg)
	defer a.Close()

	n, err := a.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Sweep() removed %d, want 2", n)
	}

	runs, err := leftover.Runs()
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 || runs[0] != "live-run" {
		t.Errorf("Runs() = %v after sweep, want [live-run]", runs)
	}
}

// backdate sets the modification time of dir and everything in it.
func backdate(t *testing.T, dir string, when time.Time) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	for _, e := range entries {
		if err := os.Chtimes(filepath.Join(dir, e.Name()), when, when); err != nil {
			t.Fatalf("backdating %s: %v", e.Name(), err)
		}
	}
	if err := os.Chtimes(dir, when, when); err != nil {
		t.Fatalf("backdating %s: %v", dir, err)
	}
}

func TestServe(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg)
	defer a.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()

	resp, err := http.Get(url + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = http.DefaultClient.Do(submission(t, url))
	if err != nil {
		t.Fatalf("POST /api/box error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("submit status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	if _, err := http.Get(url + "/health"); err == nil {
		t.Error("server still accepting connections after shutdown")
	}
}

func TestKeys(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Dispatch.Encryption = config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(cfg.BaseDir, "keys", "photobox.pub"),
		PrivateKeyPath: filepath.Join(cfg.BaseDir, "keys", "photobox.key"),
	}

	if _, err := New(context.Background(), cfg, "test"); err == nil {
		t.Fatal("New() expected error before keys are initialized")
	}

	recipient, err := InitKeys(cfg.Dispatch.Encryption, "correct horse")
	if err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	if !strings.HasPrefix(recipient, "age1") {
		t.Errorf("InitKeys() = %q, want an age recipient", recipient)
	}
	if _, err := InitKeys(cfg.Dispatch.Encryption, "correct horse"); err == nil {
		t.Error("second InitKeys() expected error, keys already exist")
	}

	a := newTestApp(t, cfg)
	defer a.Close()
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.DefaultClient.Do(submission(t, srv.URL))
	if err != nil {
		t.Fatalf("POST /api/box error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	delivered := outboxFiles(t, cfg, ".zip.age")
	if len(delivered) != 1 {
		t.Fatalf("sealed archives = %v, want exactly one", delivered)
	}
	if plain := outboxFiles(t, cfg, ".zip"); len(plain) != 0 {
		t.Errorf("plaintext archives = %v, want none", plain)
	}
	sealed, err := os.ReadFile(filepath.Join(cfg.Dispatch.FileSystem.OutboxDir, delivered[0]))
	if err != nil {
		t.Fatalf("reading sealed archive: %v", err)
	}

	t.Run("decrypts with the right passphrase", func(t *testing.T) {
		var out bytes.Buffer
		if err := DecryptArchive(cfg.Dispatch.Encryption, "correct horse", bytes.NewReader(sealed), &out); err != nil {
			t.Fatalf("DecryptArchive() error = %v", err)
		}
		names, contents := testutil.ReadZip(t, out.Bytes())
		if want := []string{"comment.txt", "hash.txt", "nickname.txt", "photo.jpg"}; !slices.Equal(names, want) {
			t.Errorf("entries = %v, want %v", names, want)
		}
		if contents["hash.txt"] != aliceFingerprint {
			t.Errorf("hash.txt = %q, want %q", contents["hash.txt"], aliceFingerprint)
		}
		if contents["photo.jpg"] != "jpeg bytes" {
			t.Errorf("photo.jpg = %q, want %q", contents["photo.jpg"], "jpeg bytes")
		}
	})

	t.Run("rejects the wrong passphrase", func(t *testing.T) {
		var out bytes.Buffer
		if err := DecryptArchive(cfg.Dispatch.Encryption, "wrong", bytes.NewReader(sealed), &out); err == nil {
			t.Fatal("DecryptArchive() expected error for wrong passphrase")
		}
	})
}
