package models

// Result is the extracted content of one fetched page.
type Result struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Byline   string `json:"byline"`
	Text     string `json:"text"`
	TopImage string `json:"top_image"`
	Status   int    `json:"status"`
	RenderMS int    `json:"render_ms"`
}
