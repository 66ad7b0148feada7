package api

import "github.com/open-teleop/handpose/pkg/handpose"

// PoseSubmission is the body of POST /api/v1/pose.
type PoseSubmission struct {
	Topic  string          `json:"topic,omitempty"`
	Record handpose.Record `json:"record"`
}

// StreamStats is the body of GET /api/v1/stream/stats.
type StreamStats struct {
	Viewers int         `json:"viewers"`
	Sources interface{} `json:"sources"`
	Topics  interface{} `json:"topics,omitempty"`
	Pools   interface{} `json:"pools,omitempty"`
}
