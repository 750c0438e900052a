// AngelaMos | 2026
// dto.go

package user

import (
	"time"

	"github.com/flightscheduly/backend/internal/auth"
)

type SetActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type UserSummary struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	FirstName         string     `json:"firstName"`
	LastName          string     `json:"lastName"`
	UserType          string     `json:"userType"`
	IsActive          bool       `json:"isActive"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
	AccessFailedCount int        `json:"accessFailedCount"`
	LockoutEnd        *time.Time `json:"lockoutEnd,omitempty"`
}

type ListUsersParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Search   string `json:"search"`
	UserType int    `json:"userType"`
}

func (p *ListUsersParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListUsersParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToUserSummary(u *User) UserSummary {
	return UserSummary{
		ID:                u.ID,
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		UserType:          auth.UserType(u.UserType).String(),
		IsActive:          u.IsActive,
		CreatedAt:         u.CreatedAt,
		LastLoginAt:       u.LastLoginAt,
		AccessFailedCount: u.AccessFailedCount,
		LockoutEnd:        u.LockoutEnd,
	}
}

func ToUserSummaryList(users []User) []UserSummary {
	summaries := make([]UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, ToUserSummary(&users[i]))
	}
	return summaries
}
