// Package domain defines the persistence models for user accounts. These
// types are mapped with GORM and form the core data layer of the API.
package domain

import "time"

// UserType classifies the account holder.
type UserType string

// Supported user types.
const (
	UserTypeStudent      UserType = "student"
	UserTypeTeacher      UserType = "teacher"
	UserTypeParent       UserType = "parent"
	UserTypePrivateTutor UserType = "private_tutor"
)

// UserTypes lists every supported UserType in declaration order.
var UserTypes = []UserType{
	UserTypeStudent,
	UserTypeTeacher,
	UserTypeParent,
	UserTypePrivateTutor,
}

// Valid reports whether t is one of the supported user types.
func (t UserType) Valid() bool {
	for _, v := range UserTypes {
		if t == v {
			return true
		}
	}
	return false
}

// User represents a registered account.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - FirstName / LastName: trimmed display names.
//   - Email: lower-cased address; unique (case-insensitive index created in
//     repo.AutoMigrate in addition to the column index below).
//   - Password: bcrypt hash. Never serialized.
//   - Type: one of UserTypes.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	FirstName string    `json:"firstName" gorm:"type:varchar(500);not null" example:"John"`
	LastName  string    `json:"lastName"  gorm:"type:varchar(500);not null" example:"Doe"`
	Email     string    `json:"email"     gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email" example:"johndoe@example.com"`
	Password  string    `json:"-"         gorm:"type:varchar(100);not null"`
	Type      UserType  `json:"type"      gorm:"type:varchar(32);not null;check:type IN ('student','teacher','parent','private_tutor')" example:"student"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
