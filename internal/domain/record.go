package domain

import "time"

// RecordKind 区分存储记录的类别。
type RecordKind string

const (
	// KindSession 标记邮箱的会话记录（存活标记）。
	KindSession RecordKind = "session"
	// KindMessage 标记一封已接收的邮件。
	KindMessage RecordKind = "message"
)

// SessionRecordID 会话记录的固定记录 ID（每个地址至多一条会话记录）。
const SessionRecordID = "session"

// Record 表示带绝对过期时间的邮箱存储记录。
//
// 会话记录与邮件记录共用同一张表，由 Kind 字段区分；
// 邮件列表查询必须排除会话记录。
type Record struct {
	Address   string     `json:"address"`
	ID        string     `json:"id"`
	Kind      RecordKind `json:"kind"`
	Subject   string     `json:"subject,omitempty"`
	Sender    string     `json:"sender,omitempty"`
	Date      string     `json:"date,omitempty"`
	BlobKey   string     `json:"blobKey,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Expired 判断记录在给定时刻是否已过期。
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// BodyBlobKey 返回邮件正文在对象存储中的键。
func BodyBlobKey(messageID string) string {
	return messageID + ".html"
}

// NewSessionRecord 构造一条会话记录。
func NewSessionRecord(address string, now time.Time, ttl time.Duration) *Record {
	return &Record{
		Address:   address,
		ID:        SessionRecordID,
		Kind:      KindSession,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
