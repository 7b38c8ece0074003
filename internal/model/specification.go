package model

import "time"

// EaseOfUse grades how approachable a product is.
type EaseOfUse string

const (
	EaseBeginner     EaseOfUse = "Beginner"
	EaseIntermediate EaseOfUse = "Intermediate"
	EaseExperienced  EaseOfUse = "Experienced"
)

func (e EaseOfUse) Valid() bool {
	switch e {
	case EaseBeginner, EaseIntermediate, EaseExperienced:
		return true
	}
	return false
}

// NicotineContent grades the strength of a product.
type NicotineContent string

const (
	NicotineNone   NicotineContent = "None"
	NicotineLow    NicotineContent = "Low"
	NicotineMedium NicotineContent = "Medium"
	NicotineHigh   NicotineContent = "High"
)

func (n NicotineContent) Valid() bool {
	switch n {
	case NicotineNone, NicotineLow, NicotineMedium, NicotineHigh:
		return true
	}
	return false
}

// SpecificationRecord is a user-authored description of a catalog product.
//
// UserID is the owner. Only the owner may update or delete the record;
// anyone may read it.
type SpecificationRecord struct {
	ID              string          `json:"id"              db:"id"`
	ProductID       int64           `json:"productId"       db:"product_id"`
	ProductTitle    string          `json:"productTitle"    db:"product_title"`
	EaseOfUse       EaseOfUse       `json:"easeOfUse"       db:"ease_of_use"`
	NicotineContent NicotineContent `json:"nicotineContent" db:"nicotine_content"`
	UserID          string          `json:"userId"          db:"user_id"`
	CreatedAt       time.Time       `json:"createdAt"       db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt"       db:"updated_at"`
}
