package model

import "time"

type Provider string

const (
	// ProviderR2 is the capacity-limited backend.
	ProviderR2 Provider = "r2"
	// ProviderS3 is the unlimited backend.
	ProviderS3 Provider = "s3"
)

func (p Provider) Valid() bool {
	return p == ProviderR2 || p == ProviderS3
}

type SizeType string

const (
	SizeThumb    SizeType = "thumb"
	SizeMedium   SizeType = "medium"
	SizeLarge    SizeType = "large"
	SizeOriginal SizeType = "original"
)

// SizeTypes lists every image variant in ascending size order.
var SizeTypes = []SizeType{SizeThumb, SizeMedium, SizeLarge, SizeOriginal}

type OperationClass string

const (
	// ClassA covers write and list operations.
	ClassA OperationClass = "A"
	// ClassB covers read operations.
	ClassB OperationClass = "B"
)

type R2Operation struct {
	ID             string         `json:"id"`
	OperationClass OperationClass `json:"operation_class"`
	OperationType  string         `json:"operation_type"`
	FileKey        string         `json:"file_key,omitempty"`
	FileSize       int64          `json:"file_size"`
	CreatedAt      time.Time      `json:"created_at"`
}

type StorageStats struct {
	Provider   Provider  `json:"provider"`
	TotalBytes int64     `json:"total_bytes"`
	FileCount  int64     `json:"file_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type UsageFigure struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
}

type ClassUsage struct {
	A UsageFigure `json:"A"`
	B UsageFigure `json:"B"`
}

type OperationUsage struct {
	Daily   ClassUsage `json:"daily"`
	Monthly ClassUsage `json:"monthly"`
}

type R2Usage struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Available  int64   `json:"available"`
	Percentage float64 `json:"percentage"`
	FileCount  int64   `json:"file_count"`
	IsWarning  bool    `json:"is_warning"`
	IsFull     bool    `json:"is_full"`
}

type StorageStatus struct {
	R2Enabled    bool                  `json:"r2_enabled"`
	R2Configured bool                  `json:"r2_configured"`
	R2           *R2Usage              `json:"r2"`
	S3           StorageStats          `json:"s3"`
	Operations   *OperationUsage       `json:"operations,omitempty"`
	Routing      map[SizeType]Provider `json:"routing"`
}

type UploadResult struct {
	Provider Provider `json:"provider"`
	URL      string   `json:"url"`
	Key      string   `json:"key"`
	Size     int64    `json:"size"`
	FellBack bool     `json:"fell_back"`
}
