package sevenzip

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor is a mock implementation of CommandExecutor for testing.
type mockExecutor struct {
	executeStreamingFunc func(ctx context.Context, onLine LineHandler, name string, args ...string) error
	calls                [][]string
}

func (m *mockExecutor) ExecuteStreaming(ctx context.Context, onLine LineHandler, name string, args ...string) error {
	m.calls = append(m.calls, append([]string{name}, args...))
	if m.executeStreamingFunc != nil {
		return m.executeStreamingFunc(ctx, onLine, name, args...)
	}
	return nil
}

// mockDeleter records deleted paths.
type mockDeleter struct {
	deleted []string
	err     error
}

func (m *mockDeleter) Delete(path string) error {
	m.deleted = append(m.deleted, path)
	return m.err
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func emit(lines ...string) func(ctx context.Context, onLine LineHandler, name string, args ...string) error {
	return func(ctx context.Context, onLine LineHandler, name string, args ...string) error {
		for _, l := range lines {
			onLine(l)
		}
		return nil
	}
}

func successOutput(before, after string) func(ctx context.Context, onLine LineHandler, name string, args ...string) error {
	return emit(
		"Add new data to archive: 1 folder, 2 files, "+before+" bytes (1 KiB)",
		" 50% 1 + a.txt",
		"100% 2",
		"Archive size: "+after+" bytes (1 KiB)",
		"Everything is Ok",
	)
}

func testJob(t *testing.T) models.ArchiveJob {
	t.Helper()
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.txt"), []byte("hello"), 0o600))
	return models.ArchiveJob{
		TargetID:   "10_documents",
		TargetName: "Documents",
		InputPaths: []string{in},
		OutputDir:  t.TempDir(),
		Filename:   "HOST_me_2024-05-01_Documents.7z",
		DictSize:   "192m",
		MxLevel:    9,
		Split:      true,
	}
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestArchive_Success(t *testing.T) {
	executor := &mockExecutor{executeStreamingFunc: successOutput("2048", "512")}
	svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, executor)
	job := testJob(t)

	var updates []models.Progress
	result, err := svc.Archive(context.Background(), job, func(p models.Progress) {
		updates = append(updates, p)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2048), result.BeforeBytes)
	assert.Equal(t, int64(512), result.AfterBytes)
	assert.Equal(t, job.OutputPath(), result.OutputPath)
	assert.False(t, result.Split)

	require.Len(t, executor.calls, 1)
	call := executor.calls[0]
	assert.Equal(t, []string{"7z", "a", "-t7z", "-m0=lzma2", "-md=192m", "-mx=9", "-bsp1"}, call[:7])
	assert.Equal(t, job.OutputPath(), call[len(call)-2])
	assert.Equal(t, job.InputPaths[0], call[len(call)-1])

	require.Len(t, updates, 2)
	assert.Equal(t, models.Progress{Target: "Documents", Stage: models.StageCompress, Percent: 50}, updates[0])
	assert.Equal(t, 100, updates[1].Percent)
}

func TestArchive_Flags(t *testing.T) {
	executor := &mockExecutor{executeStreamingFunc: successOutput("10", "5")}
	svc := NewWithExecutor(testLogger(), "/opt/7zz", &mockDeleter{}, executor)
	job := testJob(t)
	job.Password = "hunter22"
	job.FullPath = true
	job.DictSize = "32m"
	job.MxLevel = 4

	_, err := svc.Archive(context.Background(), job, nil)
	require.NoError(t, err)

	call := executor.calls[0]
	assert.Equal(t, "/opt/7zz", call[0])
	assert.True(t, hasArg(call, "-mhe=on"))
	assert.True(t, hasArg(call, "-phunter22"))
	assert.True(t, hasArg(call, "-spf2"))
	assert.True(t, hasArg(call, "-md=32m"))
	assert.True(t, hasArg(call, "-mx=4"))
}

func TestArchive_NoPasswordNoEncryptionFlags(t *testing.T) {
	executor := &mockExecutor{executeStreamingFunc: successOutput("10", "5")}
	svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, executor)

	_, err := svc.Archive(context.Background(), testJob(t), nil)
	require.NoError(t, err)

	for _, a := range executor.calls[0] {
		assert.False(t, strings.HasPrefix(a, "-p"), a)
		assert.NotEqual(t, "-mhe=on", a)
		assert.NotEqual(t, "-spf2", a)
	}
}

func TestArchive_SplitDecision(t *testing.T) {
	tests := []struct {
		name   string
		modify func(t *testing.T, job *models.ArchiveJob)
		split  bool
	}{
		{
			name:   "single small input",
			modify: func(t *testing.T, job *models.ArchiveJob) {},
			split:  false,
		},
		{
			name: "multiple inputs",
			modify: func(t *testing.T, job *models.ArchiveJob) {
				job.InputPaths = append(job.InputPaths, t.TempDir())
			},
			split: true,
		},
		{
			name: "forced",
			modify: func(t *testing.T, job *models.ArchiveJob) {
				job.SplitForce = true
			},
			split: true,
		},
		{
			name: "splitting disabled",
			modify: func(t *testing.T, job *models.ArchiveJob) {
				job.Split = false
				job.InputPaths = append(job.InputPaths, t.TempDir())
			},
			split: false,
		},
		{
			name: "input at volume threshold",
			modify: func(t *testing.T, job *models.ArchiveJob) {
				f, err := os.Create(filepath.Join(job.InputPaths[0], "big.bin"))
				require.NoError(t, err)
				require.NoError(t, f.Truncate(VolumeThreshold))
				require.NoError(t, f.Close())
			},
			split: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &mockExecutor{executeStreamingFunc: successOutput("10", "5")}
			svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, executor)
			job := testJob(t)
			tt.modify(t, &job)

			result, err := svc.Archive(context.Background(), job, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.split, hasArg(executor.calls[0], "-v4092m"))
			assert.Equal(t, tt.split, result.Split)
		})
	}
}

func TestArchive_NotFound(t *testing.T) {
	executor := &mockExecutor{}
	svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, executor)

	job := testJob(t)
	job.InputPaths = []string{filepath.Join(t.TempDir(), "missing")}
	_, err := svc.Archive(context.Background(), job, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	job = testJob(t)
	job.OutputDir = filepath.Join(t.TempDir(), "missing")
	_, err = svc.Archive(context.Background(), job, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	job = testJob(t)
	job.InputPaths = nil
	_, err = svc.Archive(context.Background(), job, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, executor.calls)
}

func TestArchive_MissingFilename(t *testing.T) {
	svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, &mockExecutor{})
	job := testJob(t)
	job.Filename = ""

	_, err := svc.Archive(context.Background(), job, nil)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestArchive_EngineFailure(t *testing.T) {
	exitErr := errors.New("exit status 2")
	executor := &mockExecutor{
		executeStreamingFunc: func(ctx context.Context, onLine LineHandler, name string, args ...string) error {
			onLine("ERROR: The system cannot find the file specified.")
			return exitErr
		},
	}
	svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, executor)

	_, err := svc.Archive(context.Background(), testJob(t), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveFailure)
	assert.ErrorIs(t, err, exitErr)

	var archiveErr *ArchiveError
	require.True(t, errors.As(err, &archiveErr))
	assert.Equal(t, "Documents", archiveErr.Target)
	assert.Equal(t, models.StageCompress, archiveErr.Stage)
	assert.Equal(t, []string{"ERROR: The system cannot find the file specified."}, archiveErr.Output)
	assert.Contains(t, err.Error(), "Documents")
}

func TestArchive_UnparsableOutput(t *testing.T) {
	executor := &mockExecutor{executeStreamingFunc: emit("Everything is Ok")}
	svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, executor)

	_, err := svc.Archive(context.Background(), testJob(t), nil)
	assert.ErrorIs(t, err, ErrArchiveFailure)
}

func TestArchiveWithPreTar(t *testing.T) {
	deleter := &mockDeleter{}
	executor := &mockExecutor{}
	executor.executeStreamingFunc = func(ctx context.Context, onLine LineHandler, name string, args ...string) error {
		if args[1] == "-ttar" {
			// the engine creates the tarball
			tarPath := args[len(args)-2]
			if err := os.WriteFile(tarPath, []byte("tar"), 0o600); err != nil {
				return err
			}
			return successOutput("9000", "9500")(ctx, onLine, name, args...)
		}
		return successOutput("9500", "3000")(ctx, onLine, name, args...)
	}
	svc := NewWithExecutor(testLogger(), "", deleter, executor)

	job := testJob(t)
	job.TargetName = "Plex Server"
	job.Filename = "HOST_me_2024-05-01_PlexServer.7z"
	job.FullPath = true

	var stages []models.ProgressStage
	result, err := svc.ArchiveWithPreTar(context.Background(), job, []string{"Cache*", "Updates"}, func(p models.Progress) {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	})

	require.NoError(t, err)
	assert.Equal(t, int64(9000), result.BeforeBytes)
	assert.Equal(t, int64(3000), result.AfterBytes)
	assert.True(t, result.Split)

	tarPath := filepath.Join(job.OutputDir, "HOST_me_2024-05-01_PlexServer.tar")
	require.Len(t, executor.calls, 2)
	tarCall := executor.calls[0]
	assert.Equal(t, []string{"7z", "a", "-ttar", "-bsp1", "-xr!Cache*", "-xr!Updates", tarPath, job.InputPaths[0]}, tarCall)

	compressCall := executor.calls[1]
	assert.True(t, hasArg(compressCall, "-v4092m"))
	assert.False(t, hasArg(compressCall, "-spf2"))
	assert.Equal(t, tarPath, compressCall[len(compressCall)-1])

	assert.Equal(t, []string{tarPath}, deleter.deleted)
	assert.Equal(t, []models.ProgressStage{models.StageTar, models.StageCompress}, stages)
}

func TestArchiveWithPreTar_TarFailure(t *testing.T) {
	deleter := &mockDeleter{}
	executor := &mockExecutor{
		executeStreamingFunc: func(ctx context.Context, onLine LineHandler, name string, args ...string) error {
			return errors.New("exit status 2")
		},
	}
	svc := NewWithExecutor(testLogger(), "", deleter, executor)

	_, err := svc.ArchiveWithPreTar(context.Background(), testJob(t), nil, nil)

	var archiveErr *ArchiveError
	require.True(t, errors.As(err, &archiveErr))
	assert.Equal(t, models.StageTar, archiveErr.Stage)
	assert.Len(t, executor.calls, 1)
	// nothing was written, nothing to discard
	assert.Empty(t, deleter.deleted)
}

func TestInputSize(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(a, "one"), make([]byte, 100), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(a, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(a, "sub", "two"), make([]byte, 50), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(b, "three"), make([]byte, 7), 0o600))

	svc := NewWithExecutor(testLogger(), "", &mockDeleter{}, &mockExecutor{})

	assert.Equal(t, int64(150), svc.InputSize([]string{a}))
	assert.Equal(t, int64(157), svc.InputSize([]string{a, b}))
	assert.Equal(t, int64(0), svc.InputSize([]string{filepath.Join(a, "missing")}))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, []string{"a", "-mhe=on", "-p***", "out.7z"}, redact([]string{"a", "-mhe=on", "-psecret", "out.7z"}))
}

func TestDefaultExecutor_Streams(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	var lines []string
	err := (&DefaultExecutor{}).ExecuteStreaming(context.Background(), func(l string) {
		lines = append(lines, l)
	}, "/bin/sh", "-c", `printf ' 10%%\b\b\b\b 55%%\rArchive size: 3 bytes\n'; echo oops >&2`)

	require.NoError(t, err)
	assert.Equal(t, []string{" 10%", "", "", "", " 55%", "Archive size: 3 bytes", "oops"}, lines)
}

func TestDefaultExecutor_ExitError(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	err := (&DefaultExecutor{}).ExecuteStreaming(context.Background(), func(string) {}, "/bin/sh", "-c", "exit 3")
	assert.Error(t, err)
}
