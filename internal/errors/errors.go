package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotFound       ErrorCode = 1002
	ErrTimeout        ErrorCode = 1003
	ErrCanceled       ErrorCode = 1004
	ErrNotImplemented ErrorCode = 1005

	// 设备发现错误 (2000-2999)
	ErrNoDeviceFound  ErrorCode = 2000
	ErrDeviceScan     ErrorCode = 2001
	ErrDeviceProbe    ErrorCode = 2002
	ErrDeviceGone     ErrorCode = 2003
	ErrWatchDevice    ErrorCode = 2004

	// 终端会话错误 (3000-3999)
	ErrTerminalLaunch  ErrorCode = 3000
	ErrSerialPortOpen  ErrorCode = 3001
	ErrSerialPortWrite ErrorCode = 3002
	ErrSerialPortRead  ErrorCode = 3003
	ErrRawMode         ErrorCode = 3004

	// 桥接错误 (4000-4999)
	ErrBridgeListen    ErrorCode = 4000
	ErrBridgeUpgrade   ErrorCode = 4001
	ErrBridgeBusy      ErrorCode = 4002
	ErrTokenInvalid    ErrorCode = 4003
	ErrTokenExpired    ErrorCode = 4004

	// 会话历史错误 (5000-5999)
	ErrHistoryConnect ErrorCode = 5000
	ErrHistoryQuery   ErrorCode = 5001
	ErrHistoryInsert  ErrorCode = 5002
	ErrHistoryUpdate  ErrorCode = 5003

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:        "未知错误",
	ErrInvalidParam:   "无效的参数",
	ErrNotFound:       "资源未找到",
	ErrTimeout:        "操作超时",
	ErrCanceled:       "操作已取消",
	ErrNotImplemented: "功能未实现",

	// 设备发现错误
	ErrNoDeviceFound: "未找到USB串口设备",
	ErrDeviceScan:    "设备扫描失败",
	ErrDeviceProbe:   "设备探测失败",
	ErrDeviceGone:    "设备已拔出",
	ErrWatchDevice:   "设备监听失败",

	// 终端会话错误
	ErrTerminalLaunch:  "终端程序启动失败",
	ErrSerialPortOpen:  "串口打开失败",
	ErrSerialPortWrite: "串口写入失败",
	ErrSerialPortRead:  "串口读取失败",
	ErrRawMode:         "终端原始模式设置失败",

	// 桥接错误
	ErrBridgeListen:  "桥接服务监听失败",
	ErrBridgeUpgrade: "WebSocket升级失败",
	ErrBridgeBusy:    "桥接服务已有客户端连接",
	ErrTokenInvalid:  "无效的令牌",
	ErrTokenExpired:  "令牌已过期",

	// 会话历史错误
	ErrHistoryConnect: "历史数据库连接失败",
	ErrHistoryQuery:   "历史记录查询失败",
	ErrHistoryInsert:  "历史记录写入失败",
	ErrHistoryUpdate:  "历史记录更新失败",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`    // 错误码
	Message string       `json:"message"` // 错误消息
	Details string       `json:"details"` // 详细信息
	Cause   error        `json:"-"`       // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"`
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/serial-connect/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// IsFatal 判断错误是否应立即终止进程
// 设备未找到与终端启动失败均为致命错误，不重试直接退出
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrNoDeviceFound,
		ErrTerminalLaunch,
		ErrSerialPortOpen,
		ErrConfigLoad,
		ErrConfigValidate:
		return true
	default:
		return false
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrTimeout,
		ErrDeviceGone,
		ErrBridgeBusy,
		ErrHistoryConnect:
		return true
	default:
		return false
	}
}
