package titles

import "time"

type CreateTitleRequest struct {
	ISBN            string `json:"isbn" binding:"required"`
	Title           string `json:"title" binding:"required"`
	Author          string `json:"author" binding:"required"`
	Publisher       string `json:"publisher,omitempty"`
	PublicationYear int    `json:"publication_year,omitempty"`
	Category        string `json:"category,omitempty"`
	Language        string `json:"language,omitempty"`
	Location        string `json:"location,omitempty"`
	TotalCopies     int    `json:"total_copies"`
}

type MaintenanceRequest struct {
	// ポインタにして false を必須扱いできるようにする
	Maintenance *bool `json:"maintenance" binding:"required"`
}

type AdjustCopiesRequest struct {
	Delta int `json:"delta" binding:"required"`
}

type TitleResponse struct {
	ID              int64     `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Publisher       string    `json:"publisher,omitempty"`
	PublicationYear int       `json:"publication_year,omitempty"`
	Category        string    `json:"category,omitempty"`
	Language        string    `json:"language"`
	Location        string    `json:"location,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	Status          Status    `json:"status"`
	IsAvailable     bool      `json:"is_available"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func ToResponse(t *Title) TitleResponse {
	return TitleResponse{
		ID:              t.ID,
		ISBN:            t.ISBN,
		Title:           t.Title,
		Author:          t.Author,
		Publisher:       t.Publisher,
		PublicationYear: t.PublicationYear,
		Category:        t.Category,
		Language:        t.Language,
		Location:        t.Location,
		TotalCopies:     t.Total(),
		AvailableCopies: t.Available(),
		Status:          t.Status(),
		IsAvailable:     t.IsAvailable(),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}
