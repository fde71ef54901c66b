package models

import "time"

// CollectionRef binds one ingested document to the vector-store collection
// holding its chunks.
type CollectionRef struct {
	FileName       string    `json:"fileName"`
	CollectionName string    `json:"collectionName"`
	ChunkCount     int       `json:"chunkCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Session groups the documents uploaded during one client interaction.
// Collections are kept in upload order.
type Session struct {
	ID          string          `json:"sessionId"`
	Collections []CollectionRef `json:"collections"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastActive  time.Time       `json:"lastActive"`
}

// Clone returns a copy that does not share the collection slice.
func (s *Session) Clone() Session {
	out := *s
	out.Collections = append([]CollectionRef(nil), s.Collections...)
	return out
}

// CollectionNames lists the backing collection names in registration order.
func (s *Session) CollectionNames() []string {
	names := make([]string, len(s.Collections))
	for i, c := range s.Collections {
		names[i] = c.CollectionName
	}
	return names
}
