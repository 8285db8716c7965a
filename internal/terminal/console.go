package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tarm/serial"
	"github.com/wfunc/serial-connect/internal/config"
	"github.com/wfunc/serial-connect/internal/errors"
	"github.com/wfunc/serial-connect/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// detachKey Ctrl-]，内置控制台的退出键
const detachKey = 0x1D

// inputChunk 一次标准输入读取的结果
type inputChunk struct {
	data []byte
	err  error
}

// Console 内置串口控制台
// 不依赖外部终端程序，直接在当前终端上收发串口数据
type Console struct {
	cfg    *config.TerminalConfig
	port   *serial.Port
	logger *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewConsole 创建内置控制台
func NewConsole(cfg *config.TerminalConfig) *Console {
	return &Console{
		cfg:    cfg,
		logger: logger.GetModuleLogger("terminal"),
		stopCh: make(chan struct{}),
	}
}

// parseParity 解析校验位
func parseParity(s string) serial.Parity {
	switch s {
	case "O", "odd":
		return serial.ParityOdd
	case "E", "even":
		return serial.ParityEven
	default:
		return serial.ParityNone
	}
}

// Run 打开设备并进入交互会话，阻塞直到用户按Ctrl-]退出
func (c *Console) Run(device string, baud int) error {
	sc := &serial.Config{
		Name:        device,
		Baud:        baud,
		Size:        byte(c.cfg.DataBits),
		Parity:      parseParity(c.cfg.Parity),
		StopBits:    serial.StopBits(c.cfg.StopBits),
		ReadTimeout: c.cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(sc)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSerialPortOpen, "device: %s", device)
	}
	c.port = port
	defer port.Close()

	c.logger.Info("内置控制台已连接",
		zap.String("device", device),
		zap.Int("baud", baud))

	fmt.Printf("已连接 %s @ %d，按 Ctrl-] 退出\r\n", device, baud)

	// 标准输入切换为原始模式，逐字节透传
	// 输入被重定向时不是终端，跳过原始模式
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return errors.Wrap(err, errors.ErrRawMode)
		}
		defer term.Restore(fd, oldState)
	}

	readErrCh := make(chan error, 1)
	go c.pumpPortToStdout(readErrCh)

	inputCh := make(chan inputChunk)
	go c.pumpStdin(inputCh)

	detached, err := c.relay(inputCh, readErrCh, port)
	c.stop()
	if detached {
		fmt.Printf("\r\n已断开 %s\r\n", device)
	}
	return err
}

// pumpStdin 标准输入读取循环，结果送入out
// 每次的数据复制到独立缓冲区，避免被下一次读取覆盖
func (c *Console) pumpStdin(out chan<- inputChunk) {
	buf := make([]byte, 256)
	for {
		n, err := os.Stdin.Read(buf)
		chunk := inputChunk{err: err}
		if n > 0 {
			chunk.data = append([]byte(nil), buf[:n]...)
		}
		select {
		case out <- chunk:
		case <-c.stopCh:
			return
		}
		if err != nil {
			return
		}
	}
}

// relay 会话主循环：输入送串口，串口读错误立即终止
// 返回是否因退出键断开
func (c *Console) relay(input <-chan inputChunk, readErr <-chan error, port io.Writer) (bool, error) {
	for {
		select {
		case err := <-readErr:
			return false, err

		case <-c.stopCh:
			return false, nil

		case chunk := <-input:
			for i, b := range chunk.data {
				if b == detachKey {
					// 退出键之前的数据照常发送
					if i > 0 {
						if _, err := port.Write(chunk.data[:i]); err != nil {
							return false, errors.Wrap(err, errors.ErrSerialPortWrite)
						}
					}
					return true, nil
				}
			}

			if len(chunk.data) > 0 {
				if _, err := port.Write(chunk.data); err != nil {
					return false, errors.Wrap(err, errors.ErrSerialPortWrite)
				}
			}

			if chunk.err != nil {
				if chunk.err == io.EOF {
					return false, nil
				}
				return false, errors.Wrap(chunk.err, errors.ErrSerialPortWrite, "读取标准输入失败")
			}
		}
	}
}

// pumpPortToStdout 串口 -> 标准输出
func (c *Console) pumpPortToStdout(errCh chan<- error) {
	buf := make([]byte, 1024)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		n, err := c.port.Read(buf)
		if err != nil {
			// EOF不是致命错误，部分USB-CDC设备会在读超时后返回EOF
			if err == io.EOF || strings.Contains(err.Error(), "EOF") {
				continue
			}
			select {
			case errCh <- errors.Wrap(err, errors.ErrSerialPortRead):
			default:
			}
			return
		}

		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
	}
}

// stop 通知所有协程退出
func (c *Console) stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
