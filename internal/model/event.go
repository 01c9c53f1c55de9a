package model

import "time"

// Event は主催者が作成するイベント（結婚式など）を表す。
// OwnerUIDは作成時に認証済みの呼び出し元から設定され、譲渡されない。
type Event struct {
	ID           string
	OccasionType string
	BrideName    string
	GroomName    string
	EventDate    string
	UpiID        string
	OwnerUID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventUpdate はイベント更新で書き換え可能なフィールドの許可リスト。
// nilのフィールドは変更しない。OwnerUID、CreatedAt、IDはここに含めない。
type EventUpdate struct {
	OccasionType *string
	BrideName    *string
	GroomName    *string
	EventDate    *string
	UpiID        *string
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u EventUpdate) IsEmpty() bool {
	return u.OccasionType == nil && u.BrideName == nil && u.GroomName == nil &&
		u.EventDate == nil && u.UpiID == nil
}

// Apply は許可リストのフィールドだけをイベントに反映する。
func (u EventUpdate) Apply(e *Event) {
	if u.OccasionType != nil {
		e.OccasionType = *u.OccasionType
	}
	if u.BrideName != nil {
		e.BrideName = *u.BrideName
	}
	if u.GroomName != nil {
		e.GroomName = *u.GroomName
	}
	if u.EventDate != nil {
		e.EventDate = *u.EventDate
	}
	if u.UpiID != nil {
		e.UpiID = *u.UpiID
	}
}
