package device

import (
	"os"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/serial-connect/internal/errors"
	"github.com/wfunc/serial-connect/internal/logger"
	"go.uber.org/zap"
)

// Exists 检查设备节点是否存在
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Probe 探测设备是否为可打开的串口
// 以指定波特率打开后立即关闭，不读写任何数据
func Probe(path string, baud int) error {
	cfg := &serial.Config{
		Name:        path,
		Baud:        baud,
		ReadTimeout: time.Second,
	}

	port, err := serial.OpenPort(cfg)
	if err != nil {
		logger.GetModuleLogger("device").Warn("设备探测失败",
			zap.String("device", path),
			zap.Int("baud", baud),
			zap.Error(err))
		return errors.Wrapf(err, errors.ErrDeviceProbe, "device: %s", path)
	}

	if err := port.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrDeviceProbe, "device: %s", path)
	}

	logger.GetModuleLogger("device").Debug("设备探测成功",
		zap.String("device", path),
		zap.Int("baud", baud))

	return nil
}
