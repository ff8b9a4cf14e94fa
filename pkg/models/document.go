package models

// Point is a single stored document in the vector store.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"-"`
	Payload Payload   `json:"payload"`
	Score   float32   `json:"score,omitempty"`
}

// Payload holds the document text and its original filename.
type Payload struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// Document is an ingested document as returned to clients.
type Document struct {
	ID       string `json:"document_id"`
	Filename string `json:"filename"`
}
