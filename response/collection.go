package response

type CollectionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Documents   int    `json:"documents"`
}

type GetCollectionsResponse struct {
	Collections []CollectionResponse `json:"collections"`
}

type CollectionStatsResponse struct {
	Exists bool  `json:"exists"`
	Count  int64 `json:"count"`
}
