package catalog

import "time"

// Item is a marketplace listing as the catalog stores it. Price keeps both
// the raw representation the listing was submitted with (what goes over the
// wire) and a parsed amount used for filtering and sorting.
type Item struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Tags            []string  `json:"tags"`
	Features        []string  `json:"features"`
	CreatorName     string    `json:"creator_name"`
	CreatorUsername string    `json:"creator_username"`
	PriceRaw        string    `json:"price_raw"`
	Price           float64   `json:"price"`
	RatingAverage   float64   `json:"rating_average"`
	RatingCount     int       `json:"rating_count"`
	UsersCount      int       `json:"users_count"`
	Views           int       `json:"views"`
	Featured        bool      `json:"featured"`
	Image           string    `json:"image"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListQuery carries every knob the paginated list endpoint accepts.
type ListQuery struct {
	Category  string
	Sort      string
	Cursor    string
	Limit     int
	Offset    int
	PriceMin  float64
	PriceMax  float64
	MinRating float64
	Tags      []string
	Features  []string
	Search    string
}

// ItemPage wraps one paginated window of items.
type ItemPage struct {
	Items   []Item `json:"items"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
	Cursor  string `json:"cursor,omitempty"`
}
