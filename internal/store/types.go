package store

import (
	"encoding/json"
	"time"
)

// ScheduledPublish is a recurring action execution, typically a
// blog_publish_post on a cron schedule.
type ScheduledPublish struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	Action         string          `json:"action"`
	Params         json.RawMessage `json:"params,omitempty"`
	CronExpression string          `json:"cron_expression"`
	When           string          `json:"when,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ScheduledPublishUpdate carries partial updates; nil fields are left as is.
type ScheduledPublishUpdate struct {
	Name           *string
	Action         *string
	Params         json.RawMessage
	CronExpression *string
	When           *string
	Enabled        *bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	LastRunStatus  string
}

// ScheduledPublishFilter narrows a listing.
type ScheduledPublishFilter struct {
	Enabled *bool
	Action  string
	Limit   int
}
