package models

import "time"

// Student represents a learner registered in the institution.
type Student struct {
	ID        string    `db:"id" json:"id"`
	Roll      string    `db:"roll" json:"roll"`
	FullName  string    `db:"full_name" json:"full_name"`
	Year      int       `db:"year" json:"year"`
	Section   string    `db:"section" json:"section"`
	Semester  int       `db:"semester" json:"semester"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
