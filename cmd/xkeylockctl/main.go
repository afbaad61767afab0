// xkeylockctl 是 xkeylock 的命令行压测与自检工具。
//
// 用法:
//
//	xkeylockctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件路径（.yaml/.yml/.json）
//	    --log-level   日志级别 (debug/info/warn/error)
//	    --log-format  日志格式 (text/json)
//	    --log-file    日志文件路径（按大小轮转），为空时输出到 stderr
//	    --trace       将 Acquire span 输出到 stderr
//	    --metrics     结束时打印指标汇总
//
// 命令:
//
//	contend        多个 worker 反复争抢同一个 key
//	spread         多个 worker 随机访问一组 key
//	config         打印生效配置（JSON）
//	help           显示帮助信息
//
// 退出码:
//
//	0: 运行完成，互斥性成立
//	1: 运行失败或观察到同一 key 被多个持有者同时持有
//	2: 参数错误（无效 flag、配置文件不可用、未知命令等）
//
// 示例:
//
//	xkeylockctl contend --workers 16 --hold 2ms            # 16 个 worker 争抢同一个 key
//	xkeylockctl spread --keys 1000 --workers 64 --ops 500  # 64 个 worker 随机访问 1000 个 key
//	xkeylockctl -c lock.yaml --metrics contend             # 使用配置文件并打印指标
//	xkeylockctl -c lock.yaml config                        # 查看合并后的配置
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// 退出码
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 表示参数或配置错误，映射为退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用，stdout/stderr 可替换以便测试。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xkeylockctl",
		Usage:     "xkeylock 进程内 key 锁压测与自检工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     globalFlags(),
		Commands:  createCommands(),
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 runApp 统一处理退出码映射。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
		Description: `xkeylockctl 在单个进程内创建一个 xkeylock.Locker，
按指定并发模式反复获取与释放 key，并报告获取次数、失败原因和每个 key 的最大同时持有者数量。

最大同时持有者数量大于 1 即表示互斥性被破坏，进程以退出码 1 结束。`,
	}
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	return runApp(ctx, os.Args, os.Stdout, os.Stderr)
}

// runApp 执行 CLI 并返回退出码。
func runApp(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)
	return mapExitCode(app.Run(ctx, args), stderr)
}

// mapExitCode 将命令返回的错误映射为退出码，必要时向 stderr 输出错误信息。
func mapExitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return exitUsage
	}
	if isCLIUsageError(err) {
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
		return exitUsage
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return exitFailure
}

// isCLIUsageError 识别 urfave/cli 在解析阶段产生的错误（未知 flag、flag 取值非法等）。
// urfave/cli 不导出这类错误的类型，只能按消息匹配。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"flag provided but not defined",
		"invalid value",
		"flag needs an argument",
		"No help topic for",
	} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}

// setupSignalHandler 第一次 SIGINT/SIGTERM 取消 ctx，让 worker 收尾并输出报告；第二次强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
