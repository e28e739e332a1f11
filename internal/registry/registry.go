// Package registry 维护当前可收信地址的集合。
//
// 入站 SMTP 在 RCPT 阶段用它决定是否接收一封邮件：
// 不在集合中的收件人直接拒收。地址由分配流程准入，
// 由过期回收流程吊销。
package registry

import "context"

// Registry 定义收件人准入集合的操作。准入与吊销都是幂等的。
type Registry interface {
	// Admit 将地址加入集合；已存在时静默成功。
	Admit(ctx context.Context, address string) error

	// Revoke 将地址移出集合；不存在时静默成功。
	Revoke(ctx context.Context, address string) error

	// Contains 判断地址是否在集合中。
	Contains(ctx context.Context, address string) (bool, error)

	// List 返回集合内全部地址的快照。
	List(ctx context.Context) ([]string, error)

	Health() error
}
