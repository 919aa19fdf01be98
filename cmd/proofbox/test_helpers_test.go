package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proofbox/internal/api"
	"proofbox/internal/config"
	"proofbox/internal/daemon"
	"proofbox/internal/logging"
	"proofbox/internal/orchestrator"
	"proofbox/internal/store"
	"proofbox/internal/testsupport"
	"proofbox/internal/uploader"
)

type stubRemote struct{}

func (stubRemote) CreateUploadTarget(ctx context.Context, req api.UploadTargetRequest) (api.UploadTargetResponse, error) {
	key := req.RemoteKey
	if key == "" {
		key = "captures/" + req.PhotoID + ".jpg"
	}
	return api.UploadTargetResponse{
		PresignedURL: "https://storage.test/" + key,
		FileURL:      "https://cdn.test/" + key,
		RemoteKey:    key,
	}, nil
}

func (stubRemote) PutObject(context.Context, string, []byte, string) error { return nil }

func (stubRemote) CreatePhotoRecord(context.Context, api.PhotoRecordRequest) error { return nil }

func (stubRemote) RegisterAnalysis(context.Context, api.AnalysisRequest) error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	address    string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	logger := logging.NewNop()
	queue := uploader.NewQueue(cfg.Upload, st, nil, stubRemote{}, nil, logger)
	orch := orchestrator.New(cfg.Sync, st, queue, nil, logger)

	d, err := daemon.New(cfg, st, queue, orch, nil, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	configPath := filepath.Join(cfg.Paths.DataDir, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		address:    d.APIAddr(),
		configPath: configPath,
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--address", env.address, "--config", env.configPath}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[remote]\nbase_url = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Remote.BaseURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func seedFailedCapture(t *testing.T, st *store.Store, jobID string) *store.Record {
	t.Helper()
	ctx := context.Background()
	rec := testsupport.NewCapture(t, st, jobID, []byte("payload"))
	if _, err := st.UpdateStatus(ctx, rec.ID, store.StatusUploading, nil); err != nil {
		t.Fatalf("to uploading: %v", err)
	}
	rec, err := st.UpdateStatus(ctx, rec.ID, store.StatusFailed, nil)
	if err != nil {
		t.Fatalf("to failed: %v", err)
	}
	return rec
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}
