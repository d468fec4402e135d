package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 应用状态常量，对应候选人在招聘流程中的状态机
const (
	StatusApplied           = "Applied"            // 初始状态，简历已提交
	StatusResumeShortlisted = "Resume_shortlisted" // 简历筛选通过
	StatusResumeRejected    = "Resume_rejected"    // 简历筛选淘汰(终态)
	StatusOACleared         = "OA_cleared"         // 在线笔试通过
	StatusOARejected        = "OA_rejected"        // 在线笔试淘汰(终态)
	StatusFinalSelected     = "Final_selected"     // 终选录用(终态)
	StatusFinalRejected     = "Final_rejected"     // 终选淘汰(终态)
)

// 招聘流程状态常量
const (
	ProcessStatusActive    = "ACTIVE"
	ProcessStatusCompleted = "COMPLETED"
	ProcessStatusCancelled = "CANCELLED"
)

// HiringProcess 招聘流程主表，每个流程有三个独立的阶段截止时间
type HiringProcess struct {
	ProcessID         string    `gorm:"type:char(36);primaryKey"`
	Title             string    `gorm:"type:varchar(255);not null"`
	JobDescriptionText string   `gorm:"type:text;not null"`
	// 三个阶段的截止时间，要求 ResumeDeadline < OADeadline < InterviewDeadline
	ResumeDeadline    time.Time `gorm:"type:datetime(6);not null"`
	OADeadline        time.Time `gorm:"type:datetime(6);not null"`
	InterviewDeadline time.Time `gorm:"type:datetime(6);not null"`
	Status            string    `gorm:"type:varchar(50);default:'ACTIVE';index:idx_hp_status"`
	CreatedByUserID   string    `gorm:"type:char(36)"`
	CreatedAt         time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (HiringProcess) TableName() string {
	return "hiring_processes"
}

// Application 候选人投递表，(candidate_id, process_id)复合唯一
type Application struct {
	ApplicationID  uint64  `gorm:"primaryKey;autoIncrement"`
	ProcessID      string  `gorm:"type:char(36);not null;index:idx_app_process_status,priority:1;uniqueIndex:uq_app_process_candidate,priority:1"`
	CandidateID    string  `gorm:"type:char(36);not null;uniqueIndex:uq_app_process_candidate,priority:2"`
	CandidateName  string  `gorm:"type:varchar(255)"`
	CandidateEmail string  `gorm:"type:varchar(255);not null"`
	ResumeText     string  `gorm:"type:text"`          // 提取后的简历文本，未提交时为空
	ResumeObjectKey string `gorm:"type:varchar(1024)"` // MinIO中的原始简历对象键
	Status         string  `gorm:"type:varchar(50);default:'Applied';index:idx_app_process_status,priority:2"`
	// 四个独立的分数，均为0-100，未评分时为NULL
	ResumeMatchScore *int     `gorm:"type:int"`
	OAScore          *int     `gorm:"type:int"`
	TechScore        *int     `gorm:"type:int"`
	HRScore          *int     `gorm:"type:int"`
	// 终选加权综合分，终选阶段执行前为NULL
	FinalScore         *float64       `gorm:"type:float"`
	ScoreBreakdownJSON datatypes.JSON `gorm:"type:json"` // 各阶段评分的明细(权重、兜底标记等)
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Process *HiringProcess `gorm:"foreignKey:ProcessID;references:ProcessID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Application) TableName() string {
	return "applications"
}

// IsTerminal 判断状态是否为终态(该候选人不再参与后续阶段)
func IsTerminal(status string) bool {
	switch status {
	case StatusResumeRejected, StatusOARejected, StatusFinalSelected, StatusFinalRejected:
		return true
	}
	return false
}

// ScheduledJob 持久化的截止时间触发任务
// JobID格式为 {stage}_{processID}，保证每个(流程,阶段)至多一个待触发任务
type ScheduledJob struct {
	JobID     string    `gorm:"type:varchar(64);primaryKey"`
	ProcessID string    `gorm:"type:char(36);not null;index:idx_sj_process_id"`
	Stage     string    `gorm:"type:varchar(20);not null"`
	FireAt    time.Time `gorm:"type:datetime(6);not null;index:idx_sj_fire_at"`
	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (ScheduledJob) TableName() string {
	return "scheduled_jobs"
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
