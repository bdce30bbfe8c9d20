// Package models defines the document types shared by the transport layers.
package models

import "time"

// Document is a parsed Markdown file in the vault as seen by clients.
type Document struct {
	Path      string                 `json:"path"`
	Filename  string                 `json:"filename"`
	ID        string                 `json:"id,omitempty"`
	Kind      string                 `json:"kind"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title,omitempty"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Body      string                 `json:"body"`
	Checksum  string                 `json:"checksum"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// DocumentMeta is a lightweight representation returned by list operations.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
