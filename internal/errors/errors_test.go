package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrNoDeviceFound)
	suite.NotNil(err)
	suite.Equal(ErrNoDeviceFound, err.Code)
	suite.Equal("未找到USB串口设备", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrTerminalLaunch, "screen不存在")
	suite.NotNil(err)
	suite.Equal(ErrTerminalLaunch, err.Code)
	suite.Equal("终端程序启动失败", err.Message)
	suite.Equal("screen不存在", err.Details)

	// 测试多个详情
	err = New(ErrSerialPortOpen, "打开失败", "设备: /dev/ttyUSB0", "波特率: 57600")
	suite.Equal("打开失败; 设备: /dev/ttyUSB0; 波特率: 57600", err.Details)

	// 未知错误码回落到通用消息
	err = New(ErrorCode(99999))
	suite.Equal("未知错误", err.Message)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrNoDeviceFound, "patterns: %s", "/dev/ttyUSB*")
	suite.NotNil(err)
	suite.Equal(ErrNoDeviceFound, err.Code)
	suite.Equal("patterns: /dev/ttyUSB*", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("permission denied")
	wrappedErr := Wrap(originalErr, ErrSerialPortOpen)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialPortOpen, wrappedErr.Code)
	suite.Equal("permission denied", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// Unwrap返回原始错误
	suite.Equal(originalErr, errors.Unwrap(wrappedErr))

	// 包装nil错误
	nilErr := Wrap(nil, ErrUnknown)
	suite.Nil(nilErr)

	// 包装已有的AppError保留原始错误码
	appErr := New(ErrNoDeviceFound, "没有匹配设备")
	wrappedAppErr := Wrap(appErr, ErrTerminalLaunch, "额外信息")
	suite.Equal(ErrNoDeviceFound, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "额外信息")
	suite.Contains(wrappedAppErr.Details, "没有匹配设备")
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrNoDeviceFound)
	suite.True(Is(err, ErrNoDeviceFound))
	suite.False(Is(err, ErrTerminalLaunch))
	suite.False(Is(nil, ErrNoDeviceFound))
	suite.False(Is(errors.New("plain"), ErrNoDeviceFound))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrTerminalLaunch, GetCode(New(ErrTerminalLaunch)))
}

// 测试致命错误判断
// 设备未找到与终端启动失败均为致命错误，立即退出不重试
func (suite *ErrorsTestSuite) TestIsFatal() {
	suite.True(IsFatal(New(ErrNoDeviceFound)))
	suite.True(IsFatal(New(ErrTerminalLaunch)))
	suite.True(IsFatal(New(ErrSerialPortOpen)))
	suite.False(IsFatal(New(ErrTimeout)))
	suite.False(IsFatal(New(ErrBridgeBusy)))
	suite.False(IsFatal(nil))
}

// 测试可重试错误判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	suite.True(IsRetryable(New(ErrTimeout)))
	suite.True(IsRetryable(New(ErrDeviceGone)))
	suite.False(IsRetryable(New(ErrNoDeviceFound)))
	suite.False(IsRetryable(nil))
}

// 测试错误消息格式
func (suite *ErrorsTestSuite) TestErrorFormat() {
	err := New(ErrNoDeviceFound)
	suite.Equal("[2000] 未找到USB串口设备", err.Error())

	err = New(ErrNoDeviceFound, "patterns: /dev/ttyUSB*")
	suite.Equal("[2000] 未找到USB串口设备: patterns: /dev/ttyUSB*", err.Error())
}

// TestErrorsTestSuite 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
