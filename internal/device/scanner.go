package device

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wfunc/serial-connect/internal/errors"
	"github.com/wfunc/serial-connect/internal/logger"
	"go.uber.org/zap"
)

// Scanner USB串口设备扫描器
type Scanner struct {
	patterns []string
	logger   *zap.Logger
}

// NewScanner 创建设备扫描器
func NewScanner(patterns []string) *Scanner {
	return &Scanner{
		patterns: patterns,
		logger:   logger.GetModuleLogger("device"),
	}
}

// Patterns 返回扫描使用的通配模式
func (s *Scanner) Patterns() []string {
	return s.patterns
}

// Scan 扫描所有匹配的设备节点，按字典序返回
// 非法模式只记日志并跳过，所以没有错误返回
func (s *Scanner) Scan() []string {
	start := time.Now()

	var matches []string
	seen := make(map[string]bool)

	for _, pattern := range s.patterns {
		found, err := filepath.Glob(pattern)
		if err != nil {
			// 模式本身非法才会报错，跳过并继续扫描其余模式
			s.logger.Warn("设备模式非法",
				zap.String("pattern", pattern),
				zap.Error(err))
			continue
		}

		for _, device := range found {
			if !seen[device] {
				seen[device] = true
				matches = append(matches, device)
			}
		}
	}

	// 多个匹配时按字典序取first，保证选择结果确定
	sort.Strings(matches)

	logger.LogDeviceScan(s.patterns, matches, time.Since(start))

	return matches
}

// First 返回字典序最小的匹配设备
// 没有任何匹配时返回ErrNoDeviceFound
func (s *Scanner) First() (string, error) {
	matches := s.Scan()

	if len(matches) == 0 {
		return "", errors.Newf(errors.ErrNoDeviceFound,
			"patterns: %s", strings.Join(s.patterns, ", "))
	}

	device := matches[0]

	if len(matches) > 1 {
		s.logger.Info("发现多个设备，选择字典序第一个",
			zap.Strings("matches", matches),
			zap.String("selected", device))
	} else {
		s.logger.Info("找到设备", zap.String("device", device))
	}

	return device, nil
}
