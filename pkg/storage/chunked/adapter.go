package chunked

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"lfsgate/pkg/meta"
	"lfsgate/pkg/storage"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultChunkSize 与常见文档数据库的分块大小一致 (255 KiB)
const DefaultChunkSize = 255 * 1024

// Chunk 是对象内容的一个分片，(object_key, n) 唯一
type Chunk struct {
	ID   uint   `gorm:"primaryKey"`
	Key  string `gorm:"column:object_key;type:varchar(512);not null;uniqueIndex:idx_chunk_key_n"`
	N    int    `gorm:"column:n;not null;uniqueIndex:idx_chunk_key_n"`
	Data []byte `gorm:"not null"`
}

func (Chunk) TableName() string {
	return "lfs_chunks"
}

// Config 用于初始化 Adapter
type Config struct {
	DB        meta.Config
	ChunkSize int
}

// Adapter 实现了 storage.Store：内容按固定大小分片存进数据库，
// 大小等元数据记在 meta.ObjectMeta 里
//
// 连接是惰性建立的，第一次使用时才连；连接失效后下一次调用会重连
type Adapter struct {
	cfg       Config
	chunkSize int

	mu   sync.Mutex
	db   *meta.DB
	repo *meta.Repository
}

func NewAdapter(cfg Config) *Adapter {
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Adapter{cfg: cfg, chunkSize: size}
}

// NewWithDB 复用已有连接 (测试或共享连接池时使用)
func NewWithDB(db *meta.DB, chunkSize int) (*Adapter, error) {
	if err := db.AutoMigrate(&meta.ObjectMeta{}, &Chunk{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	a := NewAdapter(Config{ChunkSize: chunkSize})
	a.db = db
	a.repo = meta.NewRepository(db)
	return a, nil
}

// conn 返回缓存的连接，没有时新建一个
func (s *Adapter) conn(ctx context.Context) (*meta.DB, *meta.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, s.repo, nil
	}

	db, err := meta.NewDB(ctx, s.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(&Chunk{}); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("auto migration failed: %w", err)
	}
	slog.Info("chunked store connected", "driver", s.cfg.DB.Driver)
	s.db = db
	s.repo = meta.NewRepository(db)
	return s.db, s.repo, nil
}

// invalidate 在底层连接已断开时丢弃缓存，下次调用重新连接
func (s *Adapter) invalidate(err error) {
	if !errors.Is(err, sql.ErrConnDone) && !errors.Is(err, driver.ErrBadConn) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		slog.Warn("chunked store connection lost, will reconnect", "error", err)
		s.db.Close()
		s.db = nil
		s.repo = nil
	}
}

// Close 关闭连接；之后的调用会重新连接
func (s *Adapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.repo = nil
	return err
}

// Put 在一个事务里顺序写入所有分片，再更新元数据
// 旧分片会先被删除，所以覆盖写不会留下多余的尾部分片
func (s *Adapter) Put(ctx context.Context, user, repo, oid string, r io.Reader) error {
	db, metaRepo, err := s.conn(ctx)
	if err != nil {
		return err
	}
	key := storage.Key(user, repo, oid)

	err = db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("object_key = ?", key).Delete(&Chunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}

		buf := make([]byte, s.chunkSize)
		var total int64
		for n := 0; ; n++ {
			read, rerr := io.ReadFull(r, buf)
			if read > 0 {
				data := bytes.Clone(buf[:read])
				if err := tx.Create(&Chunk{Key: key, N: n, Data: data}).Error; err != nil {
					return fmt.Errorf("write chunk %d: %w", n, err)
				}
				total += int64(read)
			}
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				break
			}
			if rerr != nil {
				return fmt.Errorf("read object: %w", rerr)
			}
		}

		return metaRepo.SaveObjectTx(tx, &meta.ObjectMeta{
			Key:       key,
			User:      user,
			Repo:      repo,
			Oid:       oid,
			Size:      total,
			ChunkSize: s.chunkSize,
			Extra:     datatypes.JSON(`{"store":"chunked"}`),
		})
	})
	if err != nil {
		s.invalidate(err)
		return err
	}
	return nil
}

func (s *Adapter) Get(ctx context.Context, user, repo, oid string) (io.ReadCloser, error) {
	db, metaRepo, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	key := storage.Key(user, repo, oid)

	m, err := metaRepo.FindObject(ctx, key)
	if err != nil {
		s.invalidate(err)
		return nil, err
	}
	if m == nil {
		return nil, storage.ErrNotFound
	}

	return &chunkReader{ctx: ctx, db: db.GetConn(), key: key}, nil
}

// GetSize 读取元数据中的大小，没有记录时返回 SizeAbsent
func (s *Adapter) GetSize(ctx context.Context, user, repo, oid string) (int64, error) {
	_, metaRepo, err := s.conn(ctx)
	if err != nil {
		return storage.SizeAbsent, err
	}
	m, err := metaRepo.FindObject(ctx, storage.Key(user, repo, oid))
	if err != nil {
		s.invalidate(err)
		return storage.SizeAbsent, err
	}
	if m == nil {
		return storage.SizeAbsent, nil
	}
	return m.Size, nil
}

// chunkReader 按序号逐个读取分片，任何时刻只在内存里保留一个分片
type chunkReader struct {
	ctx  context.Context
	db   *gorm.DB
	key  string
	next int
	cur  []byte
	done bool
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.cur) == 0 {
		if c.done {
			return 0, io.EOF
		}
		var chunk Chunk
		err := c.db.WithContext(c.ctx).
			Where("object_key = ? AND n = ?", c.key, c.next).
			First(&chunk).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.done = true
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("read chunk %d: %w", c.next, err)
		}
		c.next++
		c.cur = chunk.Data
	}
	n := copy(p, c.cur)
	c.cur = c.cur[n:]
	return n, nil
}

func (c *chunkReader) Close() error {
	c.done = true
	c.cur = nil
	return nil
}
