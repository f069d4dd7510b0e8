package apify

import (
	"fmt"
	"strings"
)

const (
	// DefaultBaseURL is the Apify API host
	DefaultBaseURL = "https://api.apify.com"

	// DefaultActorID is the Instagram scraper actor
	DefaultActorID = "apify/instagram-scraper"

	// InstagramBaseURL is used to build profile URLs handed to the actor
	InstagramBaseURL = "https://www.instagram.com"

	// DefaultResultsLimit is the number of posts requested per run
	DefaultResultsLimit = 100

	// ResultsTypePosts asks the actor for posts rather than profile details
	ResultsTypePosts = "posts"
)

// StartRunURL returns the endpoint that starts a new actor run
func StartRunURL(baseURL, actorID string) string {
	return fmt.Sprintf("%s/v2/acts/%s/runs", strings.TrimRight(baseURL, "/"), actorID)
}

// RunURL returns the endpoint describing a run
func RunURL(baseURL, runID string) string {
	return fmt.Sprintf("%s/v2/actor-runs/%s", strings.TrimRight(baseURL, "/"), runID)
}

// DatasetItemsURL returns the endpoint listing a run's default dataset
func DatasetItemsURL(baseURL, runID string) string {
	return RunURL(baseURL, runID) + "/dataset/items"
}

// ProfileURL returns the public profile URL for username, with trailing slash
func ProfileURL(username string) string {
	return fmt.Sprintf("%s/%s/", InstagramBaseURL, username)
}
