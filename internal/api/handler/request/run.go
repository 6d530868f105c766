package request

// RunRequest carries a Nature document.
type RunRequest struct {
	Document string `json:"document" validate:"required"`
}
