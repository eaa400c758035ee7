// Package identity 主机与操作者身份信息
// 审计记录需要标注操作发生在哪台机器、由谁发起
package identity

import (
	"os"
	"os/user"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

// Identity 本机身份信息
type Identity struct {
	// 主机名
	ComputerName string
	// 操作系统平台描述 (e.g. "ubuntu 22.04")
	Platform string
	// 当前用户名
	UserName string
	// 当前用户 ID
	UserID string
}

var (
	current  Identity
	initOnce sync.Once
)

// Init 采集本机身份信息
// 任何一项采集失败都取兜底值，不阻断启动
func Init() {
	initOnce.Do(func() {
		// gopsutil 屏蔽了发行版差异，拿不到再退回 os.Hostname
		if info, err := host.Info(); err == nil {
			current.ComputerName = info.Hostname
			current.Platform = info.Platform + " " + info.PlatformVersion
		}
		if current.ComputerName == "" {
			if name, err := os.Hostname(); err == nil {
				current.ComputerName = name
			} else {
				current.ComputerName = "unknown"
			}
		}

		if u, err := user.Current(); err == nil {
			current.UserName = u.Username
			current.UserID = u.Uid
		} else {
			current.UserName = "unknown"
		}
	})
}

// Get 返回身份信息快照
// 未 Init 时返回零值，调用方自行兜底
func Get() Identity {
	return current
}
