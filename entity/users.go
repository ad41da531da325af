package entity

// User is owned by the identity service; the chat core only reads it to resolve counterparts.
type User struct {
	BaseEntity
	Name        string `json:"name" gorm:"type:varchar(255)"`
	Email       string `json:"email" gorm:"unique;type:varchar(100)"`
	Avatar      string `json:"avatar,omitempty" gorm:"text"`
	PhoneNumber string `json:"phoneNumber" gorm:"unique;type:varchar(20)"`
}
