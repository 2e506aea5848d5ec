package model

// PostSequence 帖子 id 序列名
const PostSequence = "posts"

// Sequence 单调序列。Value 是下一个待发放的值。
type Sequence struct {
	Name  string `gorm:"primaryKey;type:varchar(32)"`
	Value int64  `gorm:"not null"`
}

func (Sequence) TableName() string { return "sequences" }
