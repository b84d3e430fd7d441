package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"homerun-notifier/pkg/highlight"
)

// Operation document sent with every search request.
const searchDocument = "query Search($query: String!, $page: Int, $limit: Int, $feedPreference: FeedPreference, $languagePreference: LanguagePreference, $contentPreference: ContentPreference) { search(query: $query, limit: $limit, page: $page, feedPreference: $feedPreference, languagePreference: $languagePreference, contentPreference: $contentPreference) { plays { mediaPlayback { ...MediaPlaybackFields __typename } __typename } total __typename } } fragment MediaPlaybackFields on MediaPlayback { id description feeds { type playbacks { name url __typename } __typename } __typename }"

const operationName = "Search"

type variables struct {
	Query              string `json:"query"`
	Limit              int    `json:"limit"`
	Page               int    `json:"page"`
	LanguagePreference string `json:"languagePreference"`
	ContentPreference  string `json:"contentPreference"`
}

func newVariables(query string) variables {
	return variables{
		Query:              query,
		Limit:              1,
		Page:               0,
		LanguagePreference: "EN",
		ContentPreference:  "MIXED",
	}
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data *struct {
		Search struct {
			Plays []struct {
				MediaPlayback []*highlight.Highlight `json:"mediaPlayback"`
			} `json:"plays"`
			Total int `json:"total"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// GraphQLError is returned when the API answers with errors and no data.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// decodeResponse parses a search response body. A body that parses but does
// not hold exactly one play with exactly one media playback yields a nil
// highlight and no error.
func decodeResponse(body []byte) (*highlight.Highlight, int, error) {
	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	if resp.Data == nil {
		if len(resp.Errors) > 0 {
			msgs := make([]string, 0, len(resp.Errors))
			for _, e := range resp.Errors {
				msgs = append(msgs, e.Message)
			}
			return nil, 0, &GraphQLError{Messages: msgs}
		}
		return nil, 0, nil
	}

	search := resp.Data.Search
	if len(search.Plays) != 1 {
		return nil, search.Total, nil
	}
	playbacks := search.Plays[0].MediaPlayback
	if len(playbacks) != 1 || playbacks[0] == nil || playbacks[0].ID == "" {
		return nil, search.Total, nil
	}
	return playbacks[0], search.Total, nil
}
