package meta

import (
	"time"

	"gorm.io/datatypes"
)

// ObjectMeta 是一个 LFS 对象的元数据文档
// Key 与存储层使用的 user/repo/oid 完全一致，唯一
type ObjectMeta struct {
	Key string `gorm:"column:object_key;primaryKey;type:varchar(512)"`

	User string `gorm:"column:owner;index:idx_object_repo;type:varchar(255);not null"`
	Repo string `gorm:"column:repo;index:idx_object_repo;type:varchar(255);not null"`
	Oid  string `gorm:"type:varchar(255);not null"`

	// Size 是对象的总字节数
	Size int64 `gorm:"not null"`

	// ChunkSize 仅对分块存储有意义，其它后端为 0
	ChunkSize int `gorm:"default:0"`

	// Extra 存放后端相关的非结构化信息 (例如上传来源)
	Extra datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 强制指定表名
func (ObjectMeta) TableName() string {
	return "lfs_objects"
}
