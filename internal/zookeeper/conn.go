// internal/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 对 zk.Conn 的薄封装，统一建连参数。
type Conn struct {
	*zk.Conn
}

// Connect 建立 ZooKeeper 会话。sessionTimeout 同时决定临时节点的存活窗口。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn}, nil
}

// EnsurePath 逐级创建持久节点，已存在不报错。
func (c *Conn) EnsurePath(path string) error {
	_, err := c.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return err
	}
	return nil
}
