package terminal

import (
	"os"
	"os/exec"
	"strconv"

	"github.com/wfunc/serial-connect/internal/errors"
	"github.com/wfunc/serial-connect/internal/logger"
	"go.uber.org/zap"
)

// Launcher 外部终端程序启动器
// 前台运行终端程序并继承标准输入输出，阻塞直到会话结束
type Launcher struct {
	program string
	logger  *zap.Logger
}

// NewLauncher 创建启动器
func NewLauncher(program string) *Launcher {
	return &Launcher{
		program: program,
		logger:  logger.GetModuleLogger("terminal"),
	}
}

// buildArgs 按终端程序构建参数
// 默认格式为 (设备路径, 波特率) 两个位置参数
func (l *Launcher) buildArgs(device string, baud int) []string {
	baudStr := strconv.Itoa(baud)

	switch l.program {
	case "minicom":
		return []string{"-D", device, "-b", baudStr}
	case "picocom":
		return []string{"-b", baudStr, device}
	case "cu":
		return []string{"-l", device, "-s", baudStr}
	default:
		// screen及同类程序
		return []string{device, baudStr}
	}
}

// Launch 启动终端会话并阻塞到结束，返回终端程序的退出码
// 程序缺失或启动失败返回ErrTerminalLaunch；会话正常结束时
// 原样返回其退出码，不做任何解释
func (l *Launcher) Launch(device string, baud int) (int, error) {
	path, err := exec.LookPath(l.program)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrTerminalLaunch,
			"program: %s", l.program)
	}

	args := l.buildArgs(device, baud)

	l.logger.Info("启动终端会话",
		zap.String("program", path),
		zap.Strings("args", args))

	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrapf(err, errors.ErrTerminalLaunch,
			"program: %s", path)
	}

	err = cmd.Wait()
	if err != nil {
		// 终端会话以非零退出属正常路径，退出码原样向上传递
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			l.logger.Info("终端会话结束",
				zap.String("program", path),
				zap.Int("exit_code", code))
			return code, nil
		}
		return 0, errors.Wrapf(err, errors.ErrTerminalLaunch,
			"program: %s", path)
	}

	l.logger.Info("终端会话结束",
		zap.String("program", path),
		zap.Int("exit_code", 0))

	return 0, nil
}
