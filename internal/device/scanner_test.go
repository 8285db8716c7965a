package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/serial-connect/internal/errors"
)

// makeNode 在临时目录里创建一个假设备节点
func makeNode(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, nil, 0644))
	return path
}

// 单个匹配设备时选中该设备
func TestScannerSingleMatch(t *testing.T) {
	dir := t.TempDir()
	want := makeNode(t, dir, "ttyUSB0")

	scanner := NewScanner([]string{filepath.Join(dir, "ttyUSB*")})

	selected, err := scanner.First()
	require.NoError(t, err)
	assert.Equal(t, want, selected)
}

// 多个匹配设备时按字典序取第一个
func TestScannerMultipleMatchesLexicalFirst(t *testing.T) {
	dir := t.TempDir()
	// 乱序创建，选择必须与创建顺序无关
	makeNode(t, dir, "ttyUSB2")
	want := makeNode(t, dir, "ttyUSB0")
	makeNode(t, dir, "ttyUSB1")

	scanner := NewScanner([]string{filepath.Join(dir, "ttyUSB*")})

	selected, err := scanner.First()
	require.NoError(t, err)
	assert.Equal(t, want, selected)
}

// 跨模式匹配时整体按字典序排序
func TestScannerAcrossPatterns(t *testing.T) {
	dir := t.TempDir()
	acm := makeNode(t, dir, "ttyACM0")
	usb := makeNode(t, dir, "ttyUSB0")

	// USB模式在前，但ACM0字典序更小
	scanner := NewScanner([]string{
		filepath.Join(dir, "ttyUSB*"),
		filepath.Join(dir, "ttyACM*"),
	})

	matches := scanner.Scan()
	assert.Equal(t, []string{acm, usb}, matches)

	selected, err := scanner.First()
	require.NoError(t, err)
	assert.Equal(t, acm, selected)
}

// 没有匹配设备时返回ErrNoDeviceFound
func TestScannerNoMatch(t *testing.T) {
	dir := t.TempDir()

	scanner := NewScanner([]string{filepath.Join(dir, "ttyUSB*")})

	matches := scanner.Scan()
	assert.Empty(t, matches)

	_, err := scanner.First()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoDeviceFound))
}

// 重复匹配同一节点时去重
func TestScannerDedup(t *testing.T) {
	dir := t.TempDir()
	node := makeNode(t, dir, "ttyUSB0")

	scanner := NewScanner([]string{
		filepath.Join(dir, "ttyUSB*"),
		filepath.Join(dir, "tty*"),
	})

	matches := scanner.Scan()
	assert.Equal(t, []string{node}, matches)
}

// 设备已存在时Wait立即返回
func TestWatcherImmediate(t *testing.T) {
	dir := t.TempDir()
	want := makeNode(t, dir, "ttyUSB0")

	watcher := NewWatcher(NewScanner([]string{filepath.Join(dir, "ttyUSB*")}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	selected, err := watcher.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, selected)
}

// 设备插入后Wait返回新设备
func TestWatcherDetectsCreation(t *testing.T) {
	dir := t.TempDir()
	watcher := NewWatcher(NewScanner([]string{filepath.Join(dir, "ttyUSB*")}))

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "ttyUSB0"), nil, 0644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	selected, err := watcher.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ttyUSB0"), selected)
}

// 超时后Wait返回ErrTimeout
func TestWatcherTimeout(t *testing.T) {
	dir := t.TempDir()
	watcher := NewWatcher(NewScanner([]string{filepath.Join(dir, "ttyUSB*")}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := watcher.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}

// 主动取消时Wait返回ErrCanceled而不是ErrTimeout
func TestWatcherCanceled(t *testing.T) {
	dir := t.TempDir()
	watcher := NewWatcher(NewScanner([]string{filepath.Join(dir, "ttyUSB*")}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := watcher.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCanceled))
	assert.False(t, errors.Is(err, errors.ErrTimeout))
}

// 探测不存在的设备返回ErrDeviceProbe
func TestProbeMissingDevice(t *testing.T) {
	err := Probe(filepath.Join(t.TempDir(), "ttyUSB9"), 57600)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDeviceProbe))
}

// Exists检查设备节点存在性
func TestExists(t *testing.T) {
	dir := t.TempDir()
	node := makeNode(t, dir, "ttyUSB0")

	assert.True(t, Exists(node))
	assert.False(t, Exists(filepath.Join(dir, "ttyUSB1")))
}
