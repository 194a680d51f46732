package response

type SourceResponse struct {
	Title      string  `json:"title"`
	Filename   string  `json:"filename"`
	ChunkIndex int64   `json:"chunk_index"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
}

type ChatResponse struct {
	Answer   string           `json:"answer"`
	Provider string           `json:"provider"`
	Sources  []SourceResponse `json:"sources"`
}
