// Package util 收纳通用工具子包。
//
// 子包列表：
//   - xkeylock: 基于 key 的进程内互斥，支持超时、取消信号、指数退避和尝试次数上限
package util
