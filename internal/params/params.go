package params

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Pagination holds pagination info and computed metadata.
type Pagination struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Page       int  `json:"page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ParsePagination parses ?limit=...&page=... safely. Keys are case sensitive.
func ParsePagination(q url.Values) Pagination {
	p := Pagination{
		Limit: 20,
		Page:  1,
	}

	if limitStr := strings.TrimSpace(q.Get("limit")); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			switch {
			case limit <= 0:
				p.Limit = 20
			case limit > 100:
				p.Limit = 100
			default:
				p.Limit = limit
			}
		}
	}

	if pageStr := strings.TrimSpace(q.Get("page")); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			p.Page = page
		}
	}

	p.Offset = (p.Page - 1) * p.Limit
	return p
}

// ComputeMeta fills the derived fields once the store has reported the
// total row count.
func (p *Pagination) ComputeMeta(total int) {
	p.Total = total
	p.TotalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	p.HasNext = p.Page < p.TotalPages
	p.HasPrev = p.Page > 1
}
