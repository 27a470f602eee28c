package models

import "time"

// Course is a catalog entry. Credits weight the course in GPA computation.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Title     string    `db:"title" json:"title"`
	Credits   int       `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter defines filters for catalog listing.
type CourseFilter struct {
	Search   string
	Page     int
	PageSize int
}
