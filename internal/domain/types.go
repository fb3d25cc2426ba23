package domain

import "time"

// Document is a single course file handed to the ingestion pipeline.
// SourceURI identifies it across re-ingestions (scheme://bucket/filename).
type Document struct {
	Course    string
	SourceURI string
	Title     string
	Path      string
}

// ChunkMetadata is the fixed metadata schema stored with every chunk.
// Optional fields stay at their zero value when unknown; unknown keys
// coming back from storage are dropped rather than passed through.
type ChunkMetadata struct {
	Title       string    `json:"title,omitempty"`
	CourseID    string    `json:"course_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	ChunkID     int       `json:"chunk_id,omitempty"`
	PageNumber  int       `json:"page_number,omitempty"`
	TotalChunks int       `json:"total_chunks,omitempty"`
	Strategy    string    `json:"strategy,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at,omitempty"`
}

// Chunk is the unit of retrievable text. (Course, SourceURI, ChunkNo) is the
// natural key: re-ingesting a source updates chunks in place instead of
// duplicating them.
type Chunk struct {
	Course    string
	SourceURI string
	ChunkNo   int // 1-based, sequential within a source
	Section   string
	PageFrom  int // 0 when unknown
	PageTo    int // 0 when unknown
	Content   string
	Embedding []float64
	Metadata  ChunkMetadata
}

// SearchResult is a retrieved chunk with its cosine similarity score.
type SearchResult struct {
	Content  string
	Score    float64
	Metadata ChunkMetadata
}

// Snippet returns a short preview of the result content for display.
func (r SearchResult) Snippet(maxLen int) string {
	if maxLen <= 0 || len(r.Content) <= maxLen {
		return r.Content
	}
	return r.Content[:maxLen] + "..."
}

// QueryRecord is a logged student question. (UserID, QueryHash) is unique:
// re-asking the same normalized question is a no-op.
type QueryRecord struct {
	UserID            string
	QueryText         string
	QueryHash         string
	AnsweredCorrectly bool
	IsGuest           bool
	Timestamp         time.Time
}

// UserStats summarizes a user's quiz progress.
type UserStats struct {
	TotalQuestions int
	MasteredTopics int
}
