package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/serial-connect/internal/bridge"
	"github.com/wfunc/serial-connect/internal/config"
	"github.com/wfunc/serial-connect/internal/device"
	"github.com/wfunc/serial-connect/internal/errors"
	"github.com/wfunc/serial-connect/internal/history"
	"github.com/wfunc/serial-connect/internal/logger"
	"github.com/wfunc/serial-connect/internal/terminal"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
		listOnly    = flag.Bool("list", false, "仅列出匹配的设备后退出")
		devicePath  = flag.String("device", "", "指定设备路径，跳过自动发现")
		baudRate    = flag.Int("baud", 0, "波特率，覆盖配置值")
		waitDevice  = flag.Bool("wait", false, "没有设备时等待插入")
		probeFlag   = flag.Bool("probe", false, "连接前探测设备")
		bridgeMode  = flag.Bool("bridge", false, "桥接模式：通过WebSocket共享串口")
	)

	flag.Parse()

	// 显示版本信息
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 显示帮助信息
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	baud := cfg.Terminal.BaudRate
	if *baudRate > 0 {
		baud = *baudRate
	}

	scanner := device.NewScanner(cfg.Device.Patterns)

	// 仅列出设备
	if *listOnly {
		os.Exit(listDevices(scanner))
	}

	// 设备发现
	selected, err := resolveDevice(scanner, cfg, *devicePath, *waitDevice)
	if err != nil {
		// 设备未找到时直接失败，不调用终端程序
		fmt.Fprintln(os.Stderr, err)
		logger.Error("设备发现失败", zap.Error(err))
		os.Exit(1)
	}

	// 探测设备
	if *probeFlag || cfg.Device.Probe {
		if err := device.Probe(selected, baud); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	// 会话历史，失败只降级不影响会话
	sessions := openHistory(&cfg.History)

	// 桥接模式
	if *bridgeMode {
		os.Exit(runBridge(cfg, selected, baud, sessions))
	}

	// 交互终端会话
	os.Exit(runSession(cfg, selected, baud, sessions))
}

// resolveDevice 确定要连接的设备路径
func resolveDevice(scanner *device.Scanner, cfg *config.Config, explicit string, wait bool) (string, error) {
	// 显式指定设备时只验证存在性
	if explicit != "" {
		if !device.Exists(explicit) {
			return "", errors.Newf(errors.ErrNoDeviceFound, "device: %s", explicit)
		}
		return explicit, nil
	}

	if wait {
		ctx := context.Background()
		if cfg.Device.WaitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Device.WaitTimeout)
			defer cancel()
		}
		return device.NewWatcher(scanner).Wait(ctx)
	}

	return scanner.First()
}

// listDevices 打印匹配的设备列表，无匹配时返回非零
func listDevices(scanner *device.Scanner) int {
	matches := scanner.Scan()
	if len(matches) == 0 {
		fmt.Fprintln(os.Stderr, "未找到USB串口设备")
		return 1
	}
	for _, m := range matches {
		fmt.Println(m)
	}
	return 0
}

// openHistory 打开会话历史库
// 历史记录是旁路功能，任何失败都只记日志并返回nil
func openHistory(cfg *config.HistoryConfig) *history.SessionRepository {
	if !cfg.Enabled {
		return nil
	}

	db, err := history.Open(cfg)
	if err != nil {
		logger.Warn("历史数据库不可用，本次会话不记录", zap.Error(err))
		return nil
	}

	repo := history.NewSessionRepository(db)

	// 顺带清理过期记录
	if n, err := repo.Purge(cfg.KeepDays); err != nil {
		logger.Warn("历史记录清理失败", zap.Error(err))
	} else if n > 0 {
		logger.Info("清理过期会话记录", zap.Int64("count", n))
	}

	return repo
}

// runSession 启动交互终端会话并返回进程退出码
func runSession(cfg *config.Config, selected string, baud int, sessions *history.SessionRepository) int {
	program := cfg.Terminal.Program

	mode := history.SessionModeExternal
	if program == "builtin" {
		mode = history.SessionModeBuiltin
	}

	var sessionID string
	if sessions != nil {
		if id, err := sessions.Begin(selected, baud, mode, program); err == nil {
			sessionID = id
		} else {
			logger.Warn("会话记录创建失败", zap.Error(err))
		}
	}

	var exitCode int

	if program == "builtin" {
		console := terminal.NewConsole(&cfg.Terminal)
		if err := console.Run(selected, baud); err != nil {
			fmt.Fprintln(os.Stderr, err)
			exitCode = 1
		}
	} else {
		code, err := terminal.NewLauncher(program).Launch(selected, baud)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			exitCode = 1
		} else {
			// 终端程序的退出码原样作为本进程退出码
			exitCode = code
		}
	}

	if sessions != nil && sessionID != "" {
		if err := sessions.Finish(sessionID, exitCode); err != nil {
			logger.Warn("会话记录更新失败", zap.Error(err))
		}
	}

	logger.LogSession(sessionID, selected, baud, program, exitCode)

	return exitCode
}

// runBridge 启动桥接服务，阻塞到收到退出信号
func runBridge(cfg *config.Config, selected string, baud int, sessions *history.SessionRepository) int {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := bridge.NewServer(&cfg.Bridge, selected, baud, sessions)
	if err := server.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("serial-connect %s\n", Version)
	fmt.Printf("  构建时间: %s\n", BuildTime)
	fmt.Printf("  Git提交: %s\n", GitCommit)
	fmt.Printf("  构建日期: %s\n", time.Now().Format("2006-01-02"))
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println(`serial-connect - USB串口设备连接工具

自动发现第一个USB串口设备并打开交互终端会话。

用法:
  connect [选项]

选项:
  -config string  配置文件路径
  -device string  指定设备路径，跳过自动发现
  -baud int       波特率（默认57600）
  -list           仅列出匹配的设备后退出
  -wait           没有设备时等待插入
  -probe          连接前探测设备是否可打开
  -bridge         桥接模式：通过WebSocket共享串口
  -version        显示版本信息
  -help           显示帮助信息

无任何参数时：扫描设备、选择字典序第一个、以57600波特率
启动终端程序（默认screen），并原样传递其退出码。`)
}
