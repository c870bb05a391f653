package domain

import "time"

// Stage 是台账消息的生命周期阶段。
//
// 状态机（* 为终态）：
//
//	pending ──(非客户来信)──────────────► skipped*
//	pending ──(无可提取正文)────────────► 不入台账
//	pending ──(客户来信且有正文)────────► processing
//	processing ──(分类成功)─────────────► success*
//	processing ──(分类结果为空)─────────► error
//	processing ──(分类/落表抛错)────────► retry
//	retry/error ──(退避期满，次数未超)──► processing (次数+1)
//	retry/error ──(次数达到上限)────────► failed_permanently*
type Stage string

const (
	StagePending           Stage = "pending"
	StageProcessing        Stage = "processing"
	StageSuccess           Stage = "success"
	StageError             Stage = "error"
	StageRetry             Stage = "retry"
	StageSkipped           Stage = "skipped"
	StageFailedPermanently Stage = "failed_permanently"
)

// Valid 检查阶段取值是否属于状态机词汇表。
func (s Stage) Valid() bool {
	switch s {
	case StagePending, StageProcessing, StageSuccess, StageError,
		StageRetry, StageSkipped, StageFailedPermanently:
		return true
	}
	return false
}

// Terminal 判断该阶段是否为终态，终态之后不再发生任何转移。
func (s Stage) Terminal() bool {
	return s == StageSuccess || s == StageSkipped || s == StageFailedPermanently
}

// NeedsRetry 判断该阶段是否会被重试引擎选中。
// error（分类结果为空）与 retry（调用抛错）成因不同，
// 但对重试引擎的选择谓词而言等价。
func (s Stage) NeedsRetry() bool {
	return s == StageRetry || s == StageError
}

// TrackedMessage 是消息台账中的一条记录：某个 Manager 收件箱中
// 一封曾被观察到的邮件及其处理进度。
//
// (ManagerEmail, MessageID) 为自然键，同一 Manager 的台账中一个
// 邮件 ID 至多出现一次。记录只增不删，构成审计轨迹。
// CreatedAt 在首次发现时写入且不再更新，作为重试退避的时钟基准。
type TrackedMessage struct {
	ManagerEmail string    `json:"-" gorm:"primaryKey;type:varchar(255)"`
	MessageID    string    `json:"messageId" gorm:"primaryKey;type:varchar(128)"`
	Stage        Stage     `json:"stage" gorm:"type:varchar(20);index;not null"`
	RetryCount   int       `json:"retryCount" gorm:"default:0"`
	LastError    string    `json:"lastError,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StageUpdate 描述一次阶段转移时随附更新的簿记字段。
// 为 nil 的字段保持原值不变。
type StageUpdate struct {
	RetryCount *int
	LastError  *string
}
