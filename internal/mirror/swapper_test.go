package mirror_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/forgeops/repomigrate/internal/bridge"
	"github.com/forgeops/repomigrate/internal/mirror"
	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	testRegionNameConstant      = "us-east"
	testMarkerFileNameConstant  = "marker"
	testFreshMarkerConstant     = "fresh"
	testPreviousMarkerConstant  = "previous"
	testStagingSuffixConstant   = ".staging"
	testBackupSuffixConstant    = ".old"
)

type scriptedTransfer struct {
	cloneError        error
	pullError         error
	configureError    error
	cloneRequests     []bridge.CloneRequest
	pullRequests      []bridge.MirrorRequest
	configureRequests []bridge.MirrorRequest
}

func (transfer *scriptedTransfer) Clone(executionContext context.Context, request bridge.CloneRequest) error {
	transfer.cloneRequests = append(transfer.cloneRequests, request)
	if transfer.cloneError != nil {
		return transfer.cloneError
	}
	if createError := os.MkdirAll(request.DestinationPath, 0o755); createError != nil {
		return createError
	}
	return os.WriteFile(filepath.Join(request.DestinationPath, testMarkerFileNameConstant), []byte(testFreshMarkerConstant), 0o644)
}

func (transfer *scriptedTransfer) Pull(executionContext context.Context, request bridge.MirrorRequest) error {
	transfer.pullRequests = append(transfer.pullRequests, request)
	return transfer.pullError
}

func (transfer *scriptedTransfer) ConfigureMirror(executionContext context.Context, request bridge.MirrorRequest) error {
	transfer.configureRequests = append(transfer.configureRequests, request)
	return transfer.configureError
}

func buildTestSwapper(testInstance *testing.T, transfer *scriptedTransfer) *mirror.Swapper {
	swapper, creationError := mirror.NewSwapper(zap.NewNop(), transfer)
	require.NoError(testInstance, creationError)
	return swapper
}

func testProject() registry.Project {
	return registry.Project{Name: "api", Namespace: "widgets"}
}

func readMarker(testInstance *testing.T, cacheDirectory string) string {
	markerContent, readError := os.ReadFile(filepath.Join(cacheDirectory, testMarkerFileNameConstant))
	require.NoError(testInstance, readError)
	return string(markerContent)
}

func TestNewSwapperValidation(testInstance *testing.T) {
	_, missingLoggerError := mirror.NewSwapper(nil, &scriptedTransfer{})
	require.Error(testInstance, missingLoggerError)

	_, missingTransferError := mirror.NewSwapper(zap.NewNop(), nil)
	require.Error(testInstance, missingTransferError)
}

func TestPrimeOrUpdateClonesOnceThenPulls(testInstance *testing.T) {
	transfer := &scriptedTransfer{}
	swapper := buildTestSwapper(testInstance, transfer)
	cacheDirectory := filepath.Join(testInstance.TempDir(), "main", "widgets", "api.git")

	firstError := swapper.PrimeOrUpdate(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)
	require.NoError(testInstance, firstError)

	secondError := swapper.PrimeOrUpdate(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)
	require.NoError(testInstance, secondError)

	require.Len(testInstance, transfer.cloneRequests, 1)
	require.Len(testInstance, transfer.pullRequests, 1)
	require.Len(testInstance, transfer.configureRequests, 1)

	require.Equal(testInstance, cacheDirectory+testStagingSuffixConstant, transfer.cloneRequests[0].DestinationPath)
	require.Equal(testInstance, cacheDirectory+testStagingSuffixConstant, transfer.configureRequests[0].MirrorPath)
	require.Equal(testInstance, cacheDirectory, transfer.pullRequests[0].MirrorPath)

	require.Equal(testInstance, testFreshMarkerConstant, readMarker(testInstance, cacheDirectory))
	require.NoDirExists(testInstance, cacheDirectory+testStagingSuffixConstant)
	require.NoDirExists(testInstance, cacheDirectory+testBackupSuffixConstant)
}

func TestPrimeOrUpdateToleratesPullFailures(testInstance *testing.T) {
	transfer := &scriptedTransfer{pullError: errors.New("remote unreachable")}
	observerCore, observedLogs := observer.New(zap.DebugLevel)
	swapper, creationError := mirror.NewSwapper(zap.New(observerCore), transfer)
	require.NoError(testInstance, creationError)

	cacheDirectory := filepath.Join(testInstance.TempDir(), "api.git")
	require.NoError(testInstance, os.MkdirAll(cacheDirectory, 0o755))

	updateError := swapper.PrimeOrUpdate(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)
	require.NoError(testInstance, updateError)
	require.Len(testInstance, transfer.pullRequests, 1)
	require.Empty(testInstance, transfer.cloneRequests)
	require.Equal(testInstance, 1, observedLogs.FilterLevelExact(zap.DebugLevel).Len())
}

func TestRefreshReplacesExistingMirror(testInstance *testing.T) {
	transfer := &scriptedTransfer{}
	swapper := buildTestSwapper(testInstance, transfer)
	cacheDirectory := filepath.Join(testInstance.TempDir(), "api.git")

	require.NoError(testInstance, os.MkdirAll(cacheDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(cacheDirectory, testMarkerFileNameConstant), []byte(testPreviousMarkerConstant), 0o644))

	refreshError := swapper.Refresh(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)
	require.NoError(testInstance, refreshError)

	require.Len(testInstance, transfer.cloneRequests, 1)
	require.Equal(testInstance, testFreshMarkerConstant, readMarker(testInstance, cacheDirectory))
	require.NoDirExists(testInstance, cacheDirectory+testStagingSuffixConstant)
	require.NoDirExists(testInstance, cacheDirectory+testBackupSuffixConstant)
}

func TestInstallRefusesStaleBackup(testInstance *testing.T) {
	transfer := &scriptedTransfer{}
	swapper := buildTestSwapper(testInstance, transfer)
	cacheDirectory := filepath.Join(testInstance.TempDir(), "api.git")

	require.NoError(testInstance, os.MkdirAll(cacheDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(cacheDirectory, testMarkerFileNameConstant), []byte(testPreviousMarkerConstant), 0o644))
	require.NoError(testInstance, os.MkdirAll(cacheDirectory+testBackupSuffixConstant, 0o755))

	refreshError := swapper.Refresh(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)

	var conflictFailure mirror.SwapConflictError
	require.ErrorAs(testInstance, refreshError, &conflictFailure)
	require.Equal(testInstance, cacheDirectory+testBackupSuffixConstant, conflictFailure.BackupPath)

	require.Empty(testInstance, transfer.cloneRequests)
	require.Equal(testInstance, testPreviousMarkerConstant, readMarker(testInstance, cacheDirectory))
}

func TestInstallRemovesInterruptedStaging(testInstance *testing.T) {
	transfer := &scriptedTransfer{}
	swapper := buildTestSwapper(testInstance, transfer)
	cacheDirectory := filepath.Join(testInstance.TempDir(), "api.git")

	stagingDirectory := cacheDirectory + testStagingSuffixConstant
	require.NoError(testInstance, os.MkdirAll(stagingDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(stagingDirectory, testMarkerFileNameConstant), []byte(testPreviousMarkerConstant), 0o644))

	primeError := swapper.PrimeOrUpdate(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)
	require.NoError(testInstance, primeError)

	require.Len(testInstance, transfer.cloneRequests, 1)
	require.Equal(testInstance, testFreshMarkerConstant, readMarker(testInstance, cacheDirectory))
	require.NoDirExists(testInstance, stagingDirectory)
}

func TestInstallLeavesCacheAbsentOnCloneFailure(testInstance *testing.T) {
	transfer := &scriptedTransfer{cloneError: errors.New("transfer interrupted")}
	swapper := buildTestSwapper(testInstance, transfer)
	cacheDirectory := filepath.Join(testInstance.TempDir(), "api.git")

	primeError := swapper.PrimeOrUpdate(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)
	require.Error(testInstance, primeError)
	require.NoDirExists(testInstance, cacheDirectory)
	require.NoDirExists(testInstance, cacheDirectory+testBackupSuffixConstant)
}

func TestInstallKeepsExistingMirrorOnConfigureFailure(testInstance *testing.T) {
	transfer := &scriptedTransfer{configureError: errors.New("config write failed")}
	swapper := buildTestSwapper(testInstance, transfer)
	cacheDirectory := filepath.Join(testInstance.TempDir(), "api.git")

	require.NoError(testInstance, os.MkdirAll(cacheDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(cacheDirectory, testMarkerFileNameConstant), []byte(testPreviousMarkerConstant), 0o644))

	refreshError := swapper.Refresh(context.Background(), testProject(), registry.RepositoryKindMain, testRegionNameConstant, cacheDirectory)
	require.Error(testInstance, refreshError)

	require.Equal(testInstance, testPreviousMarkerConstant, readMarker(testInstance, cacheDirectory))
}
