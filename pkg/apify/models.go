package apify

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// RunStatus is the lifecycle state of an actor run
type RunStatus string

const (
	StatusReady     RunStatus = "READY"
	StatusRunning   RunStatus = "RUNNING"
	StatusSucceeded RunStatus = "SUCCEEDED"
	StatusFailed    RunStatus = "FAILED"
	StatusAborting  RunStatus = "ABORTING"
	StatusAborted   RunStatus = "ABORTED"
	StatusTimingOut RunStatus = "TIMING-OUT"
	StatusTimedOut  RunStatus = "TIMED-OUT"
)

// Failed reports whether s is a terminal state other than SUCCEEDED
func (s RunStatus) Failed() bool {
	switch s {
	case StatusFailed, StatusAborted, StatusTimedOut:
		return true
	}
	return false
}

// Succeeded reports whether the run finished successfully
func (s RunStatus) Succeeded() bool {
	return s == StatusSucceeded
}

// RunInput is the actor input document
type RunInput struct {
	DirectURLs    []string    `json:"directUrls"`
	ResultsType   string      `json:"resultsType"`
	ResultsLimit  int         `json:"resultsLimit"`
	AddParentData bool        `json:"addParentData"`
	Proxy         ProxyConfig `json:"proxy"`
}

// ProxyConfig selects the proxy pool used by the actor
type ProxyConfig struct {
	UseApifyProxy bool `json:"useApifyProxy"`
}

// Run is the subset of the run object igharvest reads
type Run struct {
	ID               string    `json:"id"`
	ActID            string    `json:"actId,omitempty"`
	Status           RunStatus `json:"status"`
	DefaultDatasetID string    `json:"defaultDatasetId,omitempty"`
}

// runEnvelope wraps every run response: {"data": {...}}
type runEnvelope struct {
	Data *Run `json:"data"`
}

// Post is one raw dataset item. The whole document is kept so it can be
// stored verbatim as metadata.
type Post map[string]interface{}

// ID returns the post id as a string; numeric ids are formatted without
// exponent
func (p Post) ID() string {
	return stringValue(p["id"])
}

// Caption returns the caption, or "" when absent
func (p Post) Caption() string {
	return stringValue(p["caption"])
}

// DisplayURL returns the main image URL
func (p Post) DisplayURL() string {
	return stringValue(p["displayUrl"])
}

// LikesCount returns likesCount, 0 when absent
func (p Post) LikesCount() int {
	return intValue(p["likesCount"])
}

// CommentsCount returns commentsCount, 0 when absent
func (p Post) CommentsCount() int {
	return intValue(p["commentsCount"])
}

// Timestamp parses the post timestamp. The actor emits ISO-8601 strings;
// numeric unix seconds are accepted too.
func (p Post) Timestamp() (time.Time, bool) {
	switch v := p["timestamp"].(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), true
			}
		}
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), true
		}
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	}
	return time.Time{}, false
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatFloat(s, 'f', 0, 64)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
