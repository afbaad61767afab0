package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/multikeylock/pkg/observability/xlog"
	"github.com/omeyang/multikeylock/pkg/util/xkeylock"
)

// 全局 flag 名称
const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
	flagLogFile   = "log-file"
	flagTrace     = "trace"
	flagMetrics   = "metrics"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "配置文件路径（.yaml/.yml/.json）",
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "日志级别 (debug/info/warn/error)，覆盖配置文件",
		},
		&cli.StringFlag{
			Name:  flagLogFormat,
			Usage: "日志格式 (text/json)，覆盖配置文件",
		},
		&cli.StringFlag{
			Name:  flagLogFile,
			Usage: "日志文件路径（按大小轮转），覆盖配置文件",
		},
		&cli.BoolFlag{
			Name:  flagTrace,
			Usage: "将 Acquire span 输出到 stderr",
		},
		&cli.BoolFlag{
			Name:  flagMetrics,
			Usage: "结束时打印指标汇总",
		},
	}
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createContendCommand(),
		createSpreadCommand(),
		createConfigCommand(),
	}
}

func createContendCommand() *cli.Command {
	return &cli.Command{
		Name:  "contend",
		Usage: "多个 worker 反复争抢同一个 key",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "并发 worker 数", Value: 8},
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "争抢的 key", Value: "hot"},
			&cli.DurationFlag{Name: "hold", Usage: "每次持有时长", Value: 0},
			&cli.IntFlag{Name: "rounds", Aliases: []string{"n"}, Usage: "每个 worker 的获取次数", Value: 100},
			&cli.IntFlag{Name: "retries", Usage: "Acquire 超时或达到次数上限后的重试次数", Value: 0},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runBench(ctx, cmd, workload{
				name:    "contend",
				workers: cmd.Int("workers"),
				ops:     cmd.Int("rounds"),
				hold:    cmd.Duration("hold"),
				keys:    []string{cmd.String("key")},
				retries: cmd.Int("retries"),
			})
		},
	}
}

func createSpreadCommand() *cli.Command {
	return &cli.Command{
		Name:  "spread",
		Usage: "多个 worker 随机访问一组 key",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keys", Usage: "key 数量", Value: 64},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "并发 worker 数", Value: 16},
			&cli.IntFlag{Name: "ops", Aliases: []string{"n"}, Usage: "每个 worker 的获取次数", Value: 1000},
			&cli.DurationFlag{Name: "hold", Usage: "每次持有时长", Value: 0},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			n := cmd.Int("keys")
			if n <= 0 {
				return newUsageError("--keys must be > 0, got %d", n)
			}
			return runBench(ctx, cmd, workload{
				name:    "spread",
				workers: cmd.Int("workers"),
				ops:     cmd.Int("ops"),
				hold:    cmd.Duration("hold"),
				keys:    keyNames(n),
				random:  true,
			})
		},
	}
}

func createConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "打印生效配置（JSON）",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := effectiveConfig(cmd)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg.view(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintln(cmd.Root().Writer, string(out))
			return nil
		},
	}
}

func keyNames(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}
	return keys
}

// effectiveConfig 合并默认值、配置文件和命令行日志参数。任何错误都视为参数错误。
func effectiveConfig(cmd *cli.Command) (fileConfig, error) {
	cfg, err := loadConfig(cmd.String(flagConfig))
	if err != nil {
		return cfg, &usageError{msg: err.Error()}
	}
	if err := cfg.applyLogFlags(cmd.String(flagLogLevel), cmd.String(flagLogFormat), cmd.String(flagLogFile)); err != nil {
		return cfg, &usageError{msg: err.Error()}
	}
	return cfg, nil
}

// runBench 组装日志、遥测和 Locker，执行 workload 并输出报告。
func runBench(ctx context.Context, cmd *cli.Command, w workload) (err error) {
	if err := w.validate(); err != nil {
		return err
	}
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	stdout, stderr := cmd.Root().Writer, cmd.Root().ErrWriter

	logger, closeLog, err := cfg.buildLogger(stderr)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer func() { err = errors.Join(err, closeLog()) }()

	tel, err := newTelemetry(stderr, cmd.Bool(flagTrace), cmd.Bool(flagMetrics))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, tel.shutdown(context.WithoutCancel(ctx))) }()

	opts := append([]xkeylock.Option{xkeylock.WithLogger(logger)}, tel.lockOptions()...)
	lk, err := xkeylock.NewFromConfig(cfg.Lock, opts...)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer func() {
		if cerr := lk.Close(); cerr != nil && !errors.Is(cerr, xkeylock.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}()

	logger.Info(ctx, "workload started",
		xlog.Operation(w.name), slog.Int("workers", w.workers), slog.Int("keys", len(w.keys)))

	rep, runErr := runWorkload(ctx, lk, logger, w)
	if rep == nil {
		return runErr
	}
	rep.write(stdout)
	if merr := tel.writeMetrics(context.WithoutCancel(ctx), stdout); merr != nil {
		logger.Warn(ctx, "metrics summary unavailable", xlog.Err(merr))
	}
	if runErr != nil {
		return runErr
	}
	if rep.Violated() {
		logger.Error(ctx, "mutual exclusion violated",
			xlog.Operation(w.name), slog.Int("max_holders", int(rep.MaxHolders)))
		fmt.Fprintf(stderr, "mutual exclusion violated: %d overlapping holds, max holders %d\n",
			rep.Violations, rep.MaxHolders)
		return &exitError{code: exitFailure}
	}
	logger.Info(ctx, "workload finished",
		xlog.Operation(w.name), xlog.Duration(rep.Elapsed), slog.Int("acquired", int(rep.Acquired)))
	return nil
}
