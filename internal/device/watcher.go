package device

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/wfunc/serial-connect/internal/errors"
	"github.com/wfunc/serial-connect/internal/logger"
	"go.uber.org/zap"
)

// Watcher 设备热插拔监听器
// 在设备目录上监听创建事件，直到出现匹配的设备节点
type Watcher struct {
	scanner *Scanner
	logger  *zap.Logger
}

// NewWatcher 创建设备监听器
func NewWatcher(scanner *Scanner) *Watcher {
	return &Watcher{
		scanner: scanner,
		logger:  logger.GetModuleLogger("device"),
	}
}

// watchDirs 从通配模式推导需要监听的目录
func (w *Watcher) watchDirs() []string {
	var dirs []string
	seen := make(map[string]bool)

	for _, pattern := range w.scanner.Patterns() {
		dir := filepath.Dir(pattern)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

// Wait 阻塞等待直到出现匹配设备，返回字典序第一个
// ctx到期返回ErrTimeout，主动取消返回ErrCanceled
func (w *Watcher) Wait(ctx context.Context) (string, error) {
	// 先扫一次，设备可能已经在了
	if device, err := w.scanner.First(); err == nil {
		return device, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrWatchDevice)
	}
	defer watcher.Close()

	for _, dir := range w.watchDirs() {
		if err := watcher.Add(dir); err != nil {
			// 目录不存在属正常情况（如macOS上没有/dev/ttyUSB*的父目录差异）
			w.logger.Debug("监听目录失败",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}

	w.logger.Info("等待设备插入",
		zap.Strings("patterns", w.scanner.Patterns()))

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return "", errors.Wrap(ctx.Err(), errors.ErrTimeout, "等待设备插入超时")
			}
			return "", errors.Wrap(ctx.Err(), errors.ErrCanceled, "等待设备插入被取消")

		case event, ok := <-watcher.Events:
			if !ok {
				return "", errors.New(errors.ErrWatchDevice, "监听通道已关闭")
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			// 创建事件后重新扫描，保持与直接扫描一致的字典序选择
			if device, err := w.scanner.First(); err == nil {
				w.logger.Info("检测到设备插入", zap.String("device", device))
				return device, nil
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return "", errors.New(errors.ErrWatchDevice, "监听通道已关闭")
			}
			w.logger.Warn("设备监听错误", zap.Error(werr))
		}
	}
}
