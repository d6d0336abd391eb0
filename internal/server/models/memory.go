package models

import "time"

// MemoryChunk is one stored piece of user memory. Chunks are written only as
// part of an atomic capture and are immutable afterwards.
type MemoryChunk struct {
	ID        string
	AccountID string
	Content   string
	Embedding []float32
	Tags      []string
	CreatedAt time.Time
}

// MemoryMatch is a hybrid search hit.
type MemoryMatch struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	Similarity float64   `json:"similarity"`
	TextRank   float64   `json:"text_rank"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}
