package model

import "time"

// Medication は服薬スケジュールを表す。スキーマ上の宣言のみで、作成・編集のロジックは持たない。
type Medication struct {
	ID         string
	UserID     string
	Name       string
	Dosage     string
	Frequency  string
	Times      []string // "08:00" 形式の時刻
	RefillDate *time.Time
	Notes      string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Appointment は通院予定を表す。
type Appointment struct {
	ID        string
	UserID    string
	Title     string
	Datetime  time.Time
	Location  string
	Notes     string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdherenceStatus は服薬記録の状態。
type AdherenceStatus string

const (
	AdherenceTaken   AdherenceStatus = "taken"
	AdherenceSkipped AdherenceStatus = "skipped"
	AdherencePending AdherenceStatus = "pending"
)

// Valid はDBのCHECK制約と同じ値集合に含まれるかを判定する。
func (s AdherenceStatus) Valid() bool {
	switch s {
	case AdherenceTaken, AdherenceSkipped, AdherencePending:
		return true
	default:
		return false
	}
}

// AdherenceLog はユーザーと服薬予定の1回分の記録を紐付ける。
type AdherenceLog struct {
	ID            string
	UserID        string
	MedicationID  string
	ScheduledTime time.Time
	TakenAt       *time.Time
	Status        AdherenceStatus
	CreatedAt     time.Time
}
