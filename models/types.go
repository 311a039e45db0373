// Package models contain needed models
package models

import (
	"metadata-injector/audio"
	"metadata-injector/metadata"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Kind is the error class, e.g. "unsupported format"
	Kind string `json:"kind,omitempty"`
}

// HealthResponse represents the response of the health check
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// FormatsResponse lists the extensions accepted for upload
type FormatsResponse struct {
	Success    bool     `json:"success"`
	Extensions []string `json:"extensions"`
}

// FileInfo describes an uploaded file
type FileInfo struct {
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
	// SizeMB is the size rendered as "x.xx MB"
	SizeMB    string `json:"size_mb"`
	SizeHuman string `json:"size_human"`
}

// InjectResponse represents the response after injecting metadata
type InjectResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	ID          string          `json:"id"`
	Metadata    metadata.TagSet `json:"metadata"`
	File        FileInfo        `json:"file"`
	DownloadURL string          `json:"download_url"`
}

// MetadataResponse carries a single generated tag set
type MetadataResponse struct {
	Success  bool            `json:"success"`
	Metadata metadata.TagSet `json:"metadata"`
}

// Range is an inclusive integer range
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// PoolsResponse lists the values tag sets are drawn from
type PoolsResponse struct {
	Success    bool     `json:"success"`
	Titles     []string `json:"titles"`
	Artists    []string `json:"artists"`
	Albums     []string `json:"albums"`
	Comments   []string `json:"comments"`
	Genres     []string `json:"genres"`
	Years      Range    `json:"years"`
	Tracks     Range    `json:"tracks"`
	TrackTotal int      `json:"track_total"`
}

// InspectResponse represents the response of an inspection
type InspectResponse struct {
	Success bool         `json:"success"`
	Report  audio.Report `json:"report"`
}

// DeleteResponse represents the response after removing an upload
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
