package circle

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects a zero-based page of results.
type PageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Normalize clamps the request to sane values.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page metadata returned alongside page content.
type Page struct {
	Page  int  `json:"page"`
	Size  int  `json:"size"`
	Total int  `json:"total"`
	Last  bool `json:"last"`
}

func NewPage(req PageRequest, total int) Page {
	return Page{
		Page:  req.Page,
		Size:  req.Size,
		Total: total,
		Last:  (req.Page+1)*req.Size >= total,
	}
}

type ExecutionPage struct {
	Page
	Content []Execution `json:"content"`
}

type CirclePage struct {
	Page
	Content []Circle `json:"content"`
}
