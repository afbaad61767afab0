// Package xkeylock 提供基于 key 的进程内互斥。
//
// 调用方按业务 key（订单号、资产 ID、文件路径等）申请独占权，
// 同一时刻每个 key 至多一个持有者；不同 key 之间互不影响，也无需预先为每个 key 创建锁。
//
// # 组成
//
//   - Registry：key → Generation 的并发映射，只提供"不存在则插入"和"匹配则删除"两个原子操作。
//     内置 [ShardedRegistry]（xxhash 分片，默认）和 [XsyncRegistry]（xsync.MapOf）。
//   - Locker：等待协议。占用失败时按指数退避轮询，支持超时、取消信号和尝试次数上限。
//   - Guard：一次成功占用的凭证，Release 幂等，只删除自己写入的条目。
//
// # 等待协议
//
//	每轮：取消检查 → TryClaim → 取消 / 超时 / 次数检查 → 睡眠 min(delay, 剩余时间)
//	delay：10ms 起，×2 增长，1s 封顶（均可配置）
//
// 超时为 0 时只尝试一次，不睡眠。取消信号会立即打断正在进行的睡眠。
// 等待者之间不排队，释放后由下一个醒来的等待者获得 key，不保证先来先得。
//
// 注意: 不传超时、取消信号和次数上限且 ctx 永不结束时，Acquire 会无限等待。
// 生产代码建议始终设置 [WithTimeout] 或带 deadline 的 ctx。
//
// # 可观测性
//
//   - [WithLogger]：xlog 结构化日志，竞争与失败打 Debug/Warn，内部不变量破坏打 Error 并附堆栈
//   - [WithMeterProvider]：OTel 指标 xkeylock.acquire.* / xkeylock.release.* / xkeylock.keys.held
//   - [WithTracerProvider]：每次 Acquire 一个 span
//
// # 与分布式锁的区别
//
// xkeylock 仅在单进程内有效，状态不持久化，进程退出即全部释放。
// 持有者拿到 Guard 后不会因超时被收回。
package xkeylock
